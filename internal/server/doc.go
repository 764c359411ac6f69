// Package server implements the MCP (Model Context Protocol) server for the
// label reader.
//
// This package provides a JSON-RPC 2.0 server that exposes label detection
// through the MCP protocol, so that an assistant can inspect digitisation
// photographs interactively: which sheet color was seen, where the labels
// are, how they were oriented and whether a front and a back photograph pair
// up.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - label_detect: Find, orient and rectify the labels of one photograph,
//     optionally returning each crop as a base64 PNG
//   - label_background: Classify the sheet color and the card face it shows
//   - label_pair: Match the labels of a front photograph to those of the
//     following back photograph by position
//   - label_overlay: Draw the detected label outlines over the photograph
//
// # Image Caching
//
// Photographs are cached by path and reused across tool calls, since a client
// commonly asks for the background, the labels and an overlay of the same
// image in turn. The cache persists for the lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// Detection anomalies that do not stop processing, such as an unexpected
// number of labels, are reported in the tool result's "warnings" list.
//
// # Usage
//
//	srv := server.New(pipeline.DefaultOptions(), logger)
//	if err := srv.Run(); err != nil {
//	    logger.Fatal(err)
//	}
package server
