package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

var backgroundProperty = map[string]interface{}{
	"type":        "string",
	"enum":        []string{"auto", "red", "blue"},
	"description": "Sheet color. Default auto, which estimates it from the image border",
	"default":     "auto",
}

var strategyProperty = map[string]interface{}{
	"type":        "string",
	"enum":        []string{"moment", "line"},
	"description": "Orientation strategy: principal axis (moment) or marker stripe (line). Default from the server configuration",
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "label_detect",
			Description: "Find the labels on a digitisation photograph, orient and rectify them. Returns one descriptor per label (centroid, axes, orientation, bounding box, corners in the photograph) and, on request, each rectified crop as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":       pathProperty("Absolute path to the photograph"),
					"background": backgroundProperty,
					"strategy":   strategyProperty,
					"include_crops": map[string]interface{}{
						"type":        "boolean",
						"description": "Also return the rectified crops. Default false",
						"default":     false,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor for returned crops (e.g., 0.5 to halve them). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "label_background",
			Description: "Classify the sheet color of a photograph and report which card face (front or back) it stands for, with the share of border pixels per color.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the photograph"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "label_pair",
			Description: "Detect the labels of a front photograph and of the following back photograph and match them by sheet position. Returns one pair per front label; unmatched labels appear with an empty side. Each sheet color is estimated from the photograph itself, ignoring the configured background. The argument order decides which photograph is the front; a sheet color that disagrees is reported as a warning.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"front_path": pathProperty("Absolute path to the front photograph"),
					"back_path":  pathProperty("Absolute path to the back photograph"),
				},
				"required": []string{"front_path", "back_path"},
			},
		},
		{
			Name:        "label_overlay",
			Description: "Draw the outline and id of every detected label over the photograph and return it as base64-encoded PNG. Use this to check detection visually.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":       pathProperty("Absolute path to the photograph"),
					"background": backgroundProperty,
					"strategy":   strategyProperty,
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Outline color as hex. Default #FFFF00",
						"default":     "#FFFF00",
					},
					"thickness": map[string]interface{}{
						"type":        "integer",
						"description": "Outline width in pixels. Default 3",
						"default":     3,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor for the returned image. Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
