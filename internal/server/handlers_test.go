package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/photomosaic/internal/pool"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

// createTestImageFile writes a PNG whose quadrants have the given colors.
// A single color fills the whole image.
func createTestImageFile(t *testing.T, path string, size int, colors ...color.Color) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	half := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := 0
			if len(colors) == 4 {
				if x >= half {
					i++
				}
				if y >= half {
					i += 2
				}
			}
			img.Set(x, y, colors[i])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// fixture holds a five-color source directory, its saved pool and a target
// whose quadrants match four of the sources exactly.
type fixture struct {
	sources string
	pool    string
	target  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	sources := filepath.Join(root, "sources")
	if err := os.Mkdir(sources, 0o755); err != nil {
		t.Fatal(err)
	}
	names := []string{"a_red", "b_green", "c_blue", "d_white", "e_black"}
	for i, c := range []color.Color{red, green, blue, white, black} {
		createTestImageFile(t, filepath.Join(sources, names[i]+".png"), 8, c)
	}

	f := fixture{
		sources: sources,
		pool:    filepath.Join(root, "pool.json"),
		target:  createTestImageFile(t, filepath.Join(root, "target.png"), 20, red, green, blue, white),
	}

	s := newTestServer(t)
	p, _, err := s.runner.BuildPool(context.Background(), sources)
	if err != nil {
		t.Fatalf("BuildPool: %v", err)
	}
	if err := pool.Save(f.pool, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return f
}

// callTool runs a tools/call request and decodes the text content into out.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}, out interface{}) *MCPError {
	t.Helper()

	params := map[string]interface{}{"name": name, "arguments": args}
	paramsJSON, _ := json.Marshal(params)
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		return resp.Error
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result should be a map, got %T", resp.Result)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("unexpected content: %#v", result["content"])
	}
	if content[0]["type"] != "text" {
		t.Errorf("content type: got %v, want text", content[0]["type"])
	}
	text, _ := content[0]["text"].(string)
	if out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("decode tool result: %v\n%s", err, text)
		}
	}
	return nil
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t)
	mcpErr := callTool(t, s, "mosaic_nope", nil, nil)
	if mcpErr == nil {
		t.Fatal("expected error for unknown tool")
	}
	if mcpErr.Code != -32000 {
		t.Errorf("code: got %d, want -32000", mcpErr.Code)
	}
	if data, _ := mcpErr.Data.(string); !strings.Contains(data, "unknown tool") {
		t.Errorf("data: got %v", mcpErr.Data)
	}
}

func TestBuildPool(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(filepath.Join(f.sources, "f_broken.png"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newTestServer(t)
	out := filepath.Join(t.TempDir(), "pool.toml")

	var result BuildPoolResult
	if mcpErr := callTool(t, s, "mosaic_build_pool", map[string]interface{}{"dir": f.sources, "output": out}, &result); mcpErr != nil {
		t.Fatalf("unexpected error: %+v", mcpErr)
	}

	if result.Count != 5 {
		t.Errorf("count: got %d, want 5", result.Count)
	}
	if len(result.Skipped) != 1 || !strings.HasSuffix(result.Skipped[0].ID, "f_broken.png") {
		t.Errorf("skipped: got %+v", result.Skipped)
	}
	if result.Sources[0].Hex != "#FF0000" {
		t.Errorf("first source hex: got %s, want #FF0000", result.Sources[0].Hex)
	}

	saved, err := pool.Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Len() != 5 {
		t.Errorf("saved pool: got %d sources, want 5", saved.Len())
	}
}

func TestBuildPool_Errors(t *testing.T) {
	s := newTestServer(t)
	if mcpErr := callTool(t, s, "mosaic_build_pool", map[string]interface{}{}, nil); mcpErr == nil {
		t.Error("expected error without dir")
	}
	missing := filepath.Join(t.TempDir(), "absent")
	if mcpErr := callTool(t, s, "mosaic_build_pool", map[string]interface{}{"dir": missing}, nil); mcpErr == nil {
		t.Error("expected error for missing dir")
	}
}

func TestSideCount(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		poolSize int
		want     int
		wantErr  bool
	}{
		{poolSize: 10, want: 3},
		{poolSize: 17, want: 4},
		{poolSize: 2, want: 1},
		{poolSize: 1, wantErr: true},
	}
	for _, tt := range tests {
		var result map[string]int
		mcpErr := callTool(t, s, "mosaic_side_count", map[string]interface{}{"pool_size": tt.poolSize}, &result)
		if tt.wantErr {
			if mcpErr == nil {
				t.Errorf("pool_size %d: expected error", tt.poolSize)
			}
			continue
		}
		if mcpErr != nil {
			t.Errorf("pool_size %d: unexpected error %+v", tt.poolSize, mcpErr)
			continue
		}
		if result["side"] != tt.want || result["cells"] != tt.want*tt.want {
			t.Errorf("pool_size %d: got %v, want side %d", tt.poolSize, result, tt.want)
		}
	}
}

func TestTargetGrid(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)

	var result TargetGridResult
	args := map[string]interface{}{"path": f.target, "side": 2, "preview": true}
	if mcpErr := callTool(t, s, "mosaic_target_grid", args, &result); mcpErr != nil {
		t.Fatalf("unexpected error: %+v", mcpErr)
	}

	want := []string{"#FF0000", "#00FF00", "#0000FF", "#FFFFFF"}
	if len(result.Hex) != len(want) {
		t.Fatalf("hex: got %v, want %v", result.Hex, want)
	}
	for i := range want {
		if result.Hex[i] != want[i] {
			t.Errorf("cell %d: got %s, want %s", i, result.Hex[i], want[i])
		}
	}

	if result.Preview == nil {
		t.Fatal("preview requested but missing")
	}
	if result.Preview.Width != 20 || result.Preview.Height != 20 {
		t.Errorf("preview size: got %dx%d", result.Preview.Width, result.Preview.Height)
	}
	raw, err := base64.StdEncoding.DecodeString(result.Preview.ImageBase64)
	if err != nil {
		t.Fatalf("preview is not base64: %v", err)
	}
	if _, err := png.Decode(strings.NewReader(string(raw))); err != nil {
		t.Errorf("preview is not a PNG: %v", err)
	}
}

func TestTargetGrid_Degenerate(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)

	for _, side := range []int{0, 21} {
		mcpErr := callTool(t, s, "mosaic_target_grid", map[string]interface{}{"path": f.target, "side": side}, nil)
		if mcpErr == nil {
			t.Errorf("side %d: expected error", side)
		}
	}
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)

	var result AssignResult
	args := map[string]interface{}{"path": f.target, "pool": f.pool}
	if mcpErr := callTool(t, s, "mosaic_assign", args, &result); mcpErr != nil {
		t.Fatalf("unexpected error: %+v", mcpErr)
	}

	// Five sources derive a 2x2 grid.
	if result.Side != 2 {
		t.Fatalf("side: got %d, want 2", result.Side)
	}
	if result.Assigned != 4 {
		t.Errorf("assigned: got %d, want 4", result.Assigned)
	}
	wantSuffix := []string{"a_red.png", "b_green.png", "c_blue.png", "d_white.png"}
	for i, id := range result.Cells {
		if !strings.HasSuffix(id, wantSuffix[i]) {
			t.Errorf("cell %d: got %s, want *%s", i, id, wantSuffix[i])
		}
		if result.Residuals[i] == nil || *result.Residuals[i] != 0 {
			t.Errorf("cell %d: residual %v, want 0", i, result.Residuals[i])
		}
	}
	if result.SOS != 0 {
		t.Errorf("sos: got %v, want 0", result.SOS)
	}
	if result.Stats.Dequeues != 5 {
		t.Errorf("dequeues: got %d, want 5", result.Stats.Dequeues)
	}
}

func TestAssign_ExplicitSide(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)

	var result AssignResult
	args := map[string]interface{}{"path": f.target, "pool": f.pool, "side": 1}
	if mcpErr := callTool(t, s, "mosaic_assign", args, &result); mcpErr != nil {
		t.Fatalf("unexpected error: %+v", mcpErr)
	}
	if result.Side != 1 || len(result.Cells) != 1 {
		t.Errorf("got side %d with %d cells, want 1 cell", result.Side, len(result.Cells))
	}
}

func TestAssign_Errors(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing pool arg", map[string]interface{}{"path": f.target}},
		{"missing pool file", map[string]interface{}{"path": f.target, "pool": filepath.Join(t.TempDir(), "none.json")}},
		{"missing target", map[string]interface{}{"path": filepath.Join(t.TempDir(), "none.png"), "pool": f.pool}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if mcpErr := callTool(t, s, "mosaic_assign", tt.args, nil); mcpErr == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCompose_Base64(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)

	var result ComposeResult
	if mcpErr := callTool(t, s, "mosaic_compose", map[string]interface{}{"path": f.target, "pool": f.pool}, &result); mcpErr != nil {
		t.Fatalf("unexpected error: %+v", mcpErr)
	}
	if result.Image == nil {
		t.Fatal("expected inline image")
	}
	if result.Output != "" {
		t.Errorf("output: got %q, want empty", result.Output)
	}

	raw, err := base64.StdEncoding.DecodeString(result.Image.ImageBase64)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := img.At(2, 2).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("top-left pixel: got %d,%d,%d, want red", r>>8, g>>8, b>>8)
	}
}

func TestCompose_Output(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)
	out := filepath.Join(t.TempDir(), "nested", "collage.png")

	var result ComposeResult
	args := map[string]interface{}{"path": f.target, "pool": f.pool, "output": out}
	if mcpErr := callTool(t, s, "mosaic_compose", args, &result); mcpErr != nil {
		t.Fatalf("unexpected error: %+v", mcpErr)
	}
	if result.Image != nil {
		t.Error("image should not be inlined when output is set")
	}
	if result.Assigned != 4 {
		t.Errorf("assigned: got %d, want 4", result.Assigned)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("collage not written: %v", err)
	}
}

func TestCacheStats(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)

	var before map[string]int
	if mcpErr := callTool(t, s, "mosaic_cache_stats", nil, &before); mcpErr != nil {
		t.Fatalf("unexpected error: %+v", mcpErr)
	}
	if before["resident"] != 0 || before["capacity"] != 20 {
		t.Errorf("fresh cache: got %v", before)
	}

	args := map[string]interface{}{"path": f.target, "pool": f.pool}
	for i := 0; i < 2; i++ {
		if mcpErr := callTool(t, s, "mosaic_compose", args, nil); mcpErr != nil {
			t.Fatalf("compose %d: %+v", i, mcpErr)
		}
	}

	var after map[string]int
	callTool(t, s, "mosaic_cache_stats", nil, &after)
	if after["misses"] != 4 {
		t.Errorf("misses: got %d, want 4", after["misses"])
	}
	if after["hits"] != 4 {
		t.Errorf("hits: got %d, want 4", after["hits"])
	}
	if after["resident"] != 4 {
		t.Errorf("resident: got %d, want 4", after["resident"])
	}
}

func TestCacheEvict(t *testing.T) {
	f := newFixture(t)
	s := newTestServer(t)

	if mcpErr := callTool(t, s, "mosaic_compose", map[string]interface{}{"path": f.target, "pool": f.pool}, nil); mcpErr != nil {
		t.Fatalf("compose: %+v", mcpErr)
	}

	red := filepath.Join(f.sources, "a_red.png")
	var result CacheEvictResult
	if mcpErr := callTool(t, s, "mosaic_cache_evict", map[string]interface{}{"id": red}, &result); mcpErr != nil {
		t.Fatalf("evict: %+v", mcpErr)
	}
	if !result.Evicted || result.Stats.Resident != 3 || result.Stats.Evictions != 1 {
		t.Errorf("evict resident source: got %+v", result)
	}

	result = CacheEvictResult{}
	callTool(t, s, "mosaic_cache_evict", map[string]interface{}{"id": red}, &result)
	if result.Evicted {
		t.Error("evicting twice should report nothing evicted")
	}

	result = CacheEvictResult{}
	callTool(t, s, "mosaic_cache_evict", map[string]interface{}{"all": true}, &result)
	if !result.Evicted || result.Stats.Resident != 0 || result.Stats.Misses != 0 {
		t.Errorf("evict all: got %+v", result)
	}

	if mcpErr := callTool(t, s, "mosaic_cache_evict", map[string]interface{}{}, nil); mcpErr == nil {
		t.Error("expected an error without id or all")
	}
}
