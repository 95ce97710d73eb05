package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Pool
		{
			Name:        "mosaic_build_pool",
			Description: "Average every image in a directory into a source pool. Optionally save the pool as .json, .toml or .txt. Unreadable images are skipped and listed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"dir":    stringProp("Absolute path to the directory of source images"),
					"output": stringProp("Optional pool file to write"),
				},
				"required": []string{"dir"},
			},
		},
		{
			Name:        "mosaic_side_count",
			Description: "Derive the grid side count for a pool of the given size: floor(sqrt(pool_size - 1)).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pool_size": integerProp("Number of images in the source pool"),
				},
				"required": []string{"pool_size"},
			},
		},

		// Target
		{
			Name:        "mosaic_target_grid",
			Description: "Split an image into side x side blocks and return the average color of each block, row-major. Optionally include a flat-color preview as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": stringProp("Absolute path to the target image"),
					"side": integerProp("Blocks per side"),
					"preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Return a preview image of the grid. Default false",
						"default":     false,
					},
				},
				"required": []string{"path", "side"},
			},
		},

		// Assignment and composition
		{
			Name:        "mosaic_assign",
			Description: "Match pool images to the grid cells of a target image. Returns the source placed in every cell, its residual, and the sum of squares.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": stringProp("Absolute path to the target image"),
					"pool": stringProp("Pool file (.json, .toml or .txt)"),
					"side": integerProp("Blocks per side. Default: configured or derived from the pool size"),
				},
				"required": []string{"path", "pool"},
			},
		},
		{
			Name:        "mosaic_compose",
			Description: "Build the full collage for a target image. Saves it when output is given, otherwise returns it as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   stringProp("Absolute path to the target image"),
					"pool":   stringProp("Pool file (.json, .toml or .txt)"),
					"side":   integerProp("Blocks per side. Default: configured or derived from the pool size"),
					"output": stringProp("Optional output file (.jpg, .png or .bmp)"),
				},
				"required": []string{"path", "pool"},
			},
		},

		// Diagnostics
		{
			Name:        "mosaic_cache_stats",
			Description: "Report hits, misses, evictions and resident images of the source image cache.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "mosaic_cache_evict",
			Description: "Drop one decoded source image from the cache, or all of them with all=true. Clearing also resets the counters.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": stringProp("Source identifier as listed in the pool"),
					"all": map[string]interface{}{
						"type":        "boolean",
						"description": "Drop every resident image. Default false",
						"default":     false,
					},
				},
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
