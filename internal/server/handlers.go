package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ironsheep/photomosaic/internal/assign"
	"github.com/ironsheep/photomosaic/internal/imaging"
	"github.com/ironsheep/photomosaic/internal/pipeline"
	"github.com/ironsheep/photomosaic/internal/pool"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "mosaic_assign").
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
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
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
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "mosaic_build_pool":
		return s.handleBuildPool(ctx, args)
	case "mosaic_side_count":
		return s.handleSideCount(args)
	case "mosaic_target_grid":
		return s.handleTargetGrid(args)
	case "mosaic_assign":
		return s.handleAssign(args)
	case "mosaic_compose":
		return s.handleCompose(args)
	case "mosaic_cache_stats":
		return s.runner.Cache().Stats(), nil
	case "mosaic_cache_evict":
		return s.handleCacheEvict(args)
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
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Pool ===

type sourceResult struct {
	ID    string              `json:"id"`
	Color imaging.ColorVector `json:"color"`
	Hex   string              `json:"hex"`
}

type skippedResult struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BuildPoolResult is returned by mosaic_build_pool. Sources are in pool
// order; Skipped lists the images that could not be averaged.
type BuildPoolResult struct {
	Dir     string          `json:"dir"`
	Output  string          `json:"output,omitempty"`
	Count   int             `json:"count"`
	Sources []sourceResult  `json:"sources"`
	Skipped []skippedResult `json:"skipped,omitempty"`
}

func (s *Server) handleBuildPool(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var p struct {
		Dir    string `json:"dir"`
		Output string `json:"output"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.Dir == "" {
		return nil, fmt.Errorf("dir is required")
	}

	built, skipped, err := s.runner.BuildPool(ctx, p.Dir)
	if err != nil {
		return nil, err
	}
	if p.Output != "" {
		if err := pool.Save(p.Output, built); err != nil {
			return nil, err
		}
	}

	result := BuildPoolResult{Dir: p.Dir, Output: p.Output, Count: built.Len()}
	for _, e := range built.Entries() {
		result.Sources = append(result.Sources, sourceResult{ID: e.ID, Color: e.Color, Hex: e.Color.Hex()})
	}
	for _, sk := range skipped {
		result.Skipped = append(result.Skipped, skippedResult{ID: sk.ID, Error: sk.Err.Error()})
	}
	return result, nil
}

func (s *Server) handleSideCount(args json.RawMessage) (interface{}, error) {
	var p struct {
		PoolSize int `json:"pool_size"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	side, err := imaging.SideCountFor(p.PoolSize)
	if err != nil {
		return nil, err
	}
	return map[string]int{"pool_size": p.PoolSize, "side": side, "cells": side * side}, nil
}

// === Target ===

// TargetGridResult is returned by mosaic_target_grid. Colors and Hex are
// row-major, one entry per cell.
type TargetGridResult struct {
	Path    string                `json:"path"`
	Side    int                   `json:"side"`
	Colors  []imaging.ColorVector `json:"colors"`
	Hex     []string              `json:"hex"`
	Preview *imaging.EncodedImage `json:"preview,omitempty"`
}

func (s *Server) handleTargetGrid(args json.RawMessage) (interface{}, error) {
	var p struct {
		Path    string `json:"path"`
		Side    int    `json:"side"`
		Preview bool   `json:"preview"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}

	img, err := s.runner.LoadImage(p.Path)
	if err != nil {
		return nil, err
	}
	grid, err := imaging.BuildTargetGrid(img, p.Side)
	if err != nil {
		return nil, err
	}

	result := TargetGridResult{Path: p.Path, Side: grid.Side, Colors: grid.Cells, Hex: make([]string, len(grid.Cells))}
	for i, c := range grid.Cells {
		result.Hex[i] = c.Hex()
	}
	if p.Preview {
		rendered, err := imaging.RenderGrid(grid, img.Bounds())
		if err != nil {
			return nil, err
		}
		result.Preview, err = imaging.EncodePNGBase64(rendered)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// === Assignment and composition ===

type mosaicArgs struct {
	Path   string `json:"path"`
	Pool   string `json:"pool"`
	Side   int    `json:"side"`
	Output string `json:"output"`
}

// load reads the pool and settles the side count for a mosaic request.
func (s *Server) load(args json.RawMessage) (mosaicArgs, *pool.Pool, error) {
	var p mosaicArgs
	if err := decodeArgs(args, &p); err != nil {
		return p, nil, err
	}
	if p.Path == "" || p.Pool == "" {
		return p, nil, fmt.Errorf("path and pool are required")
	}
	sources, err := pool.Load(p.Pool)
	if err != nil {
		return p, nil, err
	}
	p.Side, err = s.runner.SideFor(sources.Len(), p.Side)
	if err != nil {
		return p, nil, err
	}
	return p, sources, nil
}

// AssignResult is returned by mosaic_assign: the map record of the target
// plus the engine counters.
type AssignResult struct {
	pipeline.MapRecord
	Assigned int          `json:"assigned"`
	Stats    assign.Stats `json:"stats"`
}

func newAssignResult(label string, a *assign.Assignment) AssignResult {
	return AssignResult{
		MapRecord: pipeline.NewMapRecord(label, a),
		Assigned:  a.AssignedCount(),
		Stats:     a.Stats,
	}
}

func (s *Server) handleAssign(args json.RawMessage) (interface{}, error) {
	p, sources, err := s.load(args)
	if err != nil {
		return nil, err
	}

	img, err := s.runner.LoadImage(p.Path)
	if err != nil {
		return nil, err
	}
	grid, err := imaging.BuildTargetGrid(img, p.Side)
	if err != nil {
		return nil, err
	}
	a, err := s.runner.Assign(grid, sources.Entries())
	if err != nil {
		return nil, err
	}
	return newAssignResult(p.Path, a), nil
}

// ComposeResult is returned by mosaic_compose. Output is set when the
// collage was saved, Image otherwise.
type ComposeResult struct {
	Path     string                `json:"path"`
	Side     int                   `json:"side"`
	Assigned int                   `json:"assigned"`
	SOS      float64               `json:"sos"`
	Output   string                `json:"output,omitempty"`
	Image    *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) handleCompose(args json.RawMessage) (interface{}, error) {
	p, sources, err := s.load(args)
	if err != nil {
		return nil, err
	}

	collage, a, err := s.runner.Mosaic(p.Path, sources.Entries(), p.Side)
	if err != nil {
		return nil, err
	}

	result := ComposeResult{Path: p.Path, Side: a.Side, Assigned: a.AssignedCount(), SOS: a.SumOfSquares()}
	if p.Output != "" {
		if err := s.runner.Save(p.Output, collage); err != nil {
			return nil, err
		}
		result.Output = p.Output
		return result, nil
	}
	result.Image, err = imaging.EncodePNGBase64(collage)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// === Diagnostics ===

// CacheEvictResult is returned by mosaic_cache_evict.
type CacheEvictResult struct {
	Evicted bool               `json:"evicted"`
	Stats   imaging.CacheStats `json:"stats"`
}

func (s *Server) handleCacheEvict(args json.RawMessage) (interface{}, error) {
	var p struct {
		ID  string `json:"id"`
		All bool   `json:"all"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}

	cache := s.runner.Cache()
	var result CacheEvictResult
	switch {
	case p.All:
		result.Evicted = cache.Len() > 0
		cache.Clear()
	case p.ID != "":
		result.Evicted = cache.Evict(p.ID)
	default:
		return nil, fmt.Errorf("id or all is required")
	}
	result.Stats = cache.Stats()
	s.logger.Debug("cache evicted", "id", p.ID, "all", p.All, "evicted", result.Evicted)
	return result, nil
}
