package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/NHMDenmark/NHMDlabelreader/internal/batch"
	"github.com/NHMDenmark/NHMDlabelreader/internal/correspond"
	"github.com/NHMDenmark/NHMDlabelreader/internal/imaging"
	"github.com/NHMDenmark/NHMDlabelreader/internal/orient"
	"github.com/NHMDenmark/NHMDlabelreader/internal/pipeline"
	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
	"github.com/NHMDenmark/NHMDlabelreader/internal/segment"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "label_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.WithField("tool", params.Name).WithError(err).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies per-call overrides to the server's detector options
//  3. Loads images from cache
//  4. Runs detection and shapes the result for JSON
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "label_detect":
		return s.handleLabelDetect(args)
	case "label_background":
		return s.handleLabelBackground(args)
	case "label_pair":
		return s.handleLabelPair(args)
	case "label_overlay":
		return s.handleLabelOverlay(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// detectArgs are the detector overrides shared by several tools.
type detectArgs struct {
	Path       string `json:"path"`
	Background string `json:"background"`
	Strategy   string `json:"strategy"`
}

// detector returns a detector for the server options with a's overrides.
// An explicit background also selects its built-in hue ranges.
func (s *Server) detector(a detectArgs) (*pipeline.Detector, error) {
	opts := s.opts
	if a.Background != "" {
		kind, err := segment.ParseBackgroundKind(a.Background)
		if err != nil {
			return nil, err
		}
		opts.Background = kind
		opts.Hues = nil
	}
	if a.Strategy != "" {
		st, err := orient.ParseStrategy(a.Strategy)
		if err != nil {
			return nil, err
		}
		opts.Strategy = st
	}
	if opts.Strategy == orient.Line && len(opts.MarkerHues) == 0 {
		opts.MarkerHues = segment.Red.HueRanges()
	}
	return pipeline.New(opts, nil, s.log), nil
}

func (s *Server) detect(a detectArgs) (image.Image, *pipeline.Result, error) {
	if a.Path == "" {
		return nil, nil, errors.New("path is required")
	}
	det, err := s.detector(a)
	if err != nil {
		return nil, nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, nil, err
	}
	res, err := det.Process(img)
	if err != nil {
		return nil, nil, err
	}
	return img, res, nil
}

func warningStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

// === Detection ===

type labelDetectArgs struct {
	detectArgs
	IncludeCrops bool    `json:"include_crops"`
	Scale        float64 `json:"scale"`
}

// LabelInfo describes one detected label. Corners are (x, y) photograph
// coordinates, clockwise from the label's top-left.
type LabelInfo struct {
	ID          int                   `json:"id"`
	Centroid    region.Point          `json:"centroid"`
	Orientation float64               `json:"orientation"`
	Confident   bool                  `json:"confident"`
	AxisMajor   float64               `json:"axis_major"`
	AxisMinor   float64               `json:"axis_minor"`
	Area        int                   `json:"area"`
	BBox        region.BoundingBox    `json:"bbox"`
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	Corners     [4][2]float64         `json:"corners"`
	Crop        *imaging.EncodedImage `json:"crop,omitempty"`
}

// DetectResult is the label_detect response.
type DetectResult struct {
	Background segment.BackgroundKind `json:"background"`
	Side       correspond.Side        `json:"side"`
	Labels     []LabelInfo            `json:"labels"`
	Rejected   int                    `json:"rejected"`
	Warnings   []string               `json:"warnings"`
}

func describeLabel(d pipeline.Detection) LabelInfo {
	lbl := d.Label
	b := lbl.Image.Bounds()
	info := LabelInfo{
		ID:          lbl.Region.ID,
		Centroid:    lbl.Region.Centroid,
		Orientation: d.Orientation.Angle,
		Confident:   d.Orientation.Confident,
		AxisMajor:   lbl.Region.AxisMajor,
		AxisMinor:   lbl.Region.AxisMinor,
		Area:        lbl.Region.Area,
		BBox:        lbl.Region.BBox,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}
	for i, c := range lbl.Corners() {
		info.Corners[i] = [2]float64{c.X, c.Y}
	}
	return info
}

func (s *Server) handleLabelDetect(args json.RawMessage) (interface{}, error) {
	var a labelDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}

	_, res, err := s.detect(a.detectArgs)
	if err != nil {
		return nil, err
	}

	out := &DetectResult{
		Background: res.Background,
		Side:       res.Side,
		Labels:     make([]LabelInfo, 0, len(res.Labels)),
		Rejected:   len(res.Rejected),
		Warnings:   warningStrings(res.Warnings),
	}
	for _, d := range res.Labels {
		info := describeLabel(d)
		if a.IncludeCrops {
			crop, err := imaging.EncodePNG(d.Label.Image, a.Scale)
			if err != nil {
				return nil, fmt.Errorf("label %d: %w", info.ID, err)
			}
			info.Crop = crop
		}
		out.Labels = append(out.Labels, info)
	}
	return out, nil
}

// === Background ===

type labelBackgroundArgs struct {
	Path string `json:"path"`
}

// BackgroundResult is the label_background response. Shares are the border
// pixel fractions per color, "auto" counting the achromatic ones.
type BackgroundResult struct {
	Kind     segment.BackgroundKind `json:"kind"`
	Side     correspond.Side        `json:"side"`
	Fixed    bool                   `json:"fixed"`
	Shares   []segment.KindShare    `json:"shares"`
	Warnings []string               `json:"warnings"`
}

func (s *Server) handleLabelBackground(args json.RawMessage) (interface{}, error) {
	var a labelBackgroundArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	shares, err := segment.NewBorderEstimator().Shares(img)
	if err != nil {
		return nil, err
	}
	out := &BackgroundResult{
		Fixed:    s.opts.Background != segment.Unknown,
		Shares:   shares,
		Warnings: []string{},
	}

	det := pipeline.New(s.opts, nil, s.log)
	out.Kind, out.Side, err = det.Background(img)
	if err != nil {
		out.Warnings = append(out.Warnings, err.Error())
	}
	return out, nil
}

// === Pairing ===

type labelPairArgs struct {
	FrontPath string `json:"front_path"`
	BackPath  string `json:"back_path"`
}

// Pair is one merged front/back row. FrontID or BackID is 0 when that side
// has no label.
type Pair struct {
	Key           string        `json:"key"`
	FrontID       int           `json:"front_id"`
	BackID        int           `json:"back_id"`
	FrontCentroid *region.Point `json:"front_centroid,omitempty"`
	BackCentroid  *region.Point `json:"back_centroid,omitempty"`
}

// PairResult is the label_pair response.
type PairResult struct {
	FrontLabels int      `json:"front_labels"`
	BackLabels  int      `json:"back_labels"`
	Pairs       []Pair   `json:"pairs"`
	Warnings    []string `json:"warnings"`
}

func pairCards(res *pipeline.Result, stem string) []correspond.Card {
	cards := make([]correspond.Card, 0, len(res.Labels))
	for _, d := range res.Labels {
		id := d.Label.Region.ID
		cards = append(cards, correspond.Card{
			Key:      batch.PositionalKey(stem, id),
			Centroid: d.Label.Region.Centroid,
			Fields:   map[string]string{"label_id": strconv.Itoa(id)},
		})
	}
	return cards
}

func (s *Server) handleLabelPair(args json.RawMessage) (interface{}, error) {
	var a labelPairArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.FrontPath == "" || a.BackPath == "" {
		return nil, errors.New("front_path and back_path are required")
	}

	out := &PairResult{Warnings: []string{}}
	var cards [2][]correspond.Card
	for i, p := range []struct {
		path string
		want correspond.Side
	}{{a.FrontPath, correspond.Front}, {a.BackPath, correspond.Back}} {
		// each sheet's color decides its side, whatever the server default
		_, res, err := s.detect(detectArgs{Path: p.path, Background: "auto"})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.want, err)
		}
		if res.Side != p.want {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("%s photograph has a %s sheet, which maps to %s", p.want, res.Background, res.Side))
		}
		for _, w := range res.Warnings {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", p.want, w))
		}
		stem := strings.TrimSuffix(filepath.Base(p.path), filepath.Ext(p.path))
		cards[i] = pairCards(res, stem)
	}
	out.FrontLabels, out.BackLabels = len(cards[0]), len(cards[1])

	tracker := correspond.NewTracker(s.log)
	if _, err := tracker.Front(cards[0]); err != nil {
		return nil, err
	}
	rows, err := tracker.Back(cards[1])
	if err != nil {
		return nil, err
	}

	out.Pairs = make([]Pair, 0, len(rows))
	for _, r := range rows {
		out.Pairs = append(out.Pairs, Pair{
			Key:           r.Key,
			FrontID:       fieldID(r.Front),
			BackID:        fieldID(r.Back),
			FrontCentroid: r.FrontCentroid,
			BackCentroid:  r.BackCentroid,
		})
	}
	return out, nil
}

func fieldID(fields map[string]string) int {
	id, _ := strconv.Atoi(fields["label_id"])
	return id
}

// === Overlay ===

type labelOverlayArgs struct {
	detectArgs
	Color     string  `json:"color"`
	Thickness int     `json:"thickness"`
	Scale     float64 `json:"scale"`
}

// OverlayResult is the label_overlay response.
type OverlayResult struct {
	Background segment.BackgroundKind `json:"background"`
	Side       correspond.Side        `json:"side"`
	Labels     int                    `json:"labels"`
	Image      *imaging.EncodedImage  `json:"image"`
	Warnings   []string               `json:"warnings"`
}

func (s *Server) handleLabelOverlay(args json.RawMessage) (interface{}, error) {
	var a labelOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	opts := imaging.DefaultOverlayOptions()
	if a.Color != "" {
		opts.Color = a.Color
	}
	if a.Thickness > 0 {
		opts.Thickness = a.Thickness
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}

	img, res, err := s.detect(a.detectArgs)
	if err != nil {
		return nil, err
	}
	enc, err := imaging.EncodePNG(imaging.Overlay(img, res.Outlines(), opts), a.Scale)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{
		Background: res.Background,
		Side:       res.Side,
		Labels:     len(res.Labels),
		Image:      enc,
		Warnings:   warningStrings(res.Warnings),
	}, nil
}
