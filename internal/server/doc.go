// Package server implements the MCP (Model Context Protocol) server for the
// image pipeline.
//
// This package provides a JSON-RPC 2.0 server that exposes pipelines through
// the MCP protocol. Every tool call builds a pipeline for its input, records
// the requested operations on it and executes it under the server's
// governor.
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
// Input Description:
//   - image_metadata: Format, dimensions and header details of an input
//   - image_stats: Per-channel statistics and dominant colours
//
// Processing:
//   - image_process: Apply operations and write or return the output
//   - image_variants: Produce several outputs from one input concurrently
//
// Engine Settings:
//   - pipeline_counters: Queue and processing counts, limits and cache usage
//   - pipeline_settings: Change concurrency, pixel limit, SIMD and cache
//
// Operations are given as {"name": ..., "params": {...}} objects. Names are
// the pipeline operation names (resize, extract, rotate, blur, greyscale and
// so on, alternate spellings accepted) and params decode onto the
// operation's defaults.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The error text, including the parameter name for invalid options
//
// # Usage
//
//	srv := server.New()
//	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package server
