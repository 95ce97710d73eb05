// Package server implements the MCP (Model Context Protocol) server for the
// mosaic tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests (one per line)
//   - Output: JSON-RPC responses, one per line
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Pool:
//   - mosaic_build_pool: Average a directory of images, optionally save the pool
//   - mosaic_side_count: Side count derived from a pool size
//
// Target:
//   - mosaic_target_grid: Block average colors of an image, with optional preview
//
// Assignment and composition:
//   - mosaic_assign: Place pool sources on the grid cells of a target
//   - mosaic_compose: Render the collage to a file or as base64 PNG
//
// Diagnostics:
//   - mosaic_cache_stats: Source image cache counters
//   - mosaic_cache_evict: Drop one source image, or all of them, from the cache
//
// # Errors
//
// Malformed tools/call params yield code -32602 and a failing tool yields
// -32000 with the error text as data. Unknown methods yield -32601.
//
// All tools share one pipeline.Runner, and with it one source image cache.
package server
