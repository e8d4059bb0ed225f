package server

import (
	"bytes"
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
)

// createTestImageFile creates a test image file and returns its path
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(path, encodeTestImage(t, width, height, c), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}

// encodeTestImage returns a PNG filled with c.
func encodeTestImage(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

// callTool issues a tools/call request for name with args.
func callTool(t *testing.T, s *Server, name string, args interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// decodeResult unmarshals the text content of a successful tool response into v.
func decodeResult(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("unexpected error: %s: %v", resp.Error.Message, resp.Error.Data)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result is not a map: %T", resp.Result)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) == 0 {
		t.Fatal("Result has no content")
	}
	text, _ := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("failed to unmarshal result %q: %v", text, err)
	}
}

func expectToolError(t *testing.T, resp *MCPResponse, contains string) {
	t.Helper()

	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("error code: got %d, want -32000", resp.Error.Code)
	}
	if data, _ := resp.Error.Data.(string); !strings.Contains(data, contains) {
		t.Errorf("error data: got %q, want it to contain %q", data, contains)
	}
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

	resp := callTool(t, s, "image_load", map[string]interface{}{})
	expectToolError(t, resp, "unknown tool")
}

func TestHandleImageMetadata(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, 100, 80, color.RGBA{255, 0, 0, 255})

	var meta struct {
		Format string `json:"format"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}
	decodeResult(t, callTool(t, s, "image_metadata", map[string]interface{}{"path": imgPath}), &meta)

	if meta.Format != "png" {
		t.Errorf("format: got %s, want png", meta.Format)
	}
	if meta.Width != 100 || meta.Height != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", meta.Width, meta.Height)
	}
}

func TestHandleImageMetadata_MissingFile(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s, "image_metadata", map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "missing.png"),
	})
	if resp.Error == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHandleImageMetadata_NoSource(t *testing.T) {
	s := newTestServer(t)

	resp := callTool(t, s, "image_metadata", map[string]interface{}{})
	expectToolError(t, resp, "one of path, data or create is required")
}

func TestHandleImageStats(t *testing.T) {
	s := newTestServer(t)
	data := encodeTestImage(t, 10, 10, color.RGBA{0, 0, 255, 255})

	var stats struct {
		IsOpaque bool    `json:"isOpaque"`
		Entropy  float64 `json:"entropy"`
		Channels []struct {
			Min  uint8   `json:"min"`
			Max  uint8   `json:"max"`
			Mean float64 `json:"mean"`
		} `json:"channels"`
	}
	decodeResult(t, callTool(t, s, "image_stats", map[string]interface{}{
		"data": base64.StdEncoding.EncodeToString(data),
	}), &stats)

	if !stats.IsOpaque {
		t.Error("uniform opaque image should report isOpaque")
	}
	if stats.Entropy != 0 {
		t.Errorf("entropy: got %v, want 0", stats.Entropy)
	}
	if len(stats.Channels) < 3 {
		t.Fatalf("channels: got %d, want at least 3", len(stats.Channels))
	}
	if stats.Channels[2].Min != 255 || stats.Channels[2].Mean != 255 {
		t.Errorf("blue channel: got min %d mean %v, want 255", stats.Channels[2].Min, stats.Channels[2].Mean)
	}
}

func TestHandleImageProcess_ToBuffer(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, 100, 80, color.RGBA{0, 255, 0, 255})

	var res processResult
	decodeResult(t, callTool(t, s, "image_process", map[string]interface{}{
		"path": imgPath,
		"operations": []map[string]interface{}{
			{"name": "resize", "params": map[string]interface{}{"width": 50}},
		},
	}), &res)

	if res.Info.Width != 50 || res.Info.Height != 40 {
		t.Errorf("dimensions: got %dx%d, want 50x40", res.Info.Width, res.Info.Height)
	}
	if res.MimeType != "image/png" {
		t.Errorf("mimeType: got %s, want image/png", res.MimeType)
	}
	if res.ID == "" {
		t.Error("result should carry the pipeline id")
	}

	data, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		t.Fatalf("data is not base64: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("data is not a PNG: %v", err)
	}
	if cfg.Width != 50 {
		t.Errorf("decoded width: got %d, want 50", cfg.Width)
	}
}

func TestHandleImageProcess_ToFile(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, 40, 40, color.RGBA{10, 20, 30, 255})
	outPath := filepath.Join(t.TempDir(), "out.jpg")

	var res processResult
	decodeResult(t, callTool(t, s, "image_process", map[string]interface{}{
		"path": imgPath,
		"operations": []map[string]interface{}{
			{"name": "grayscale"},
			{"name": "extract", "params": map[string]interface{}{"left": 10, "top": 10, "width": 20, "height": 10}},
		},
		"output": map[string]interface{}{"path": outPath, "quality": 90},
	}), &res)

	if res.Path != outPath {
		t.Errorf("path: got %s, want %s", res.Path, outPath)
	}
	if res.Data != "" {
		t.Error("file output should not return data")
	}
	if res.Info.Format != "jpeg" {
		t.Errorf("format: got %s, want jpeg", res.Info.Format)
	}
	if res.Info.Width != 20 || res.Info.Height != 10 {
		t.Errorf("dimensions: got %dx%d, want 20x10", res.Info.Width, res.Info.Height)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("output file not written: %v", err)
	}
}

func TestHandleImageProcess_Create(t *testing.T) {
	s := newTestServer(t)

	var res processResult
	decodeResult(t, callTool(t, s, "image_process", map[string]interface{}{
		"create": map[string]interface{}{"width": 12, "height": 8, "channels": 3, "background": "#336699"},
		"output": map[string]interface{}{"format": "jpeg"},
	}), &res)

	if res.Info.Format != "jpeg" {
		t.Errorf("format: got %s, want jpeg", res.Info.Format)
	}
	if res.Info.Width != 12 || res.Info.Height != 8 {
		t.Errorf("dimensions: got %dx%d, want 12x8", res.Info.Width, res.Info.Height)
	}
	if res.MimeType != "image/jpeg" {
		t.Errorf("mimeType: got %s, want image/jpeg", res.MimeType)
	}
}

func TestHandleImageProcess_ExtractChannelByName(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, 8, 8, color.RGBA{1, 2, 3, 255})

	var res processResult
	decodeResult(t, callTool(t, s, "image_process", map[string]interface{}{
		"path": imgPath,
		"operations": []map[string]interface{}{
			{"name": "extractChannel", "params": map[string]interface{}{"channel": "green"}},
		},
	}), &res)

	if res.Info.Channels != 1 {
		t.Errorf("channels: got %d, want 1", res.Info.Channels)
	}
}

func TestHandleImageProcess_Warnings(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, 20, 20, color.RGBA{0, 0, 0, 255})

	var res processResult
	decodeResult(t, callTool(t, s, "image_process", map[string]interface{}{
		"path": imgPath,
		"operations": []map[string]interface{}{
			{"name": "blur", "params": map[string]interface{}{"sigma": 1}},
			{"name": "blur", "params": map[string]interface{}{"sigma": 2}},
		},
	}), &res)

	if len(res.Warnings) != 1 {
		t.Fatalf("warnings: got %v, want one overwrite warning", res.Warnings)
	}
	if !strings.Contains(res.Warnings[0], "overwriting previous blur options") {
		t.Errorf("warning: got %q", res.Warnings[0])
	}
}

func TestHandleImageProcess_Errors(t *testing.T) {
	imgPath := createTestImageFile(t, 20, 20, color.RGBA{0, 0, 0, 255})

	tests := []struct {
		name     string
		args     map[string]interface{}
		contains string
	}{
		{
			"unknown operation",
			map[string]interface{}{
				"path":       imgPath,
				"operations": []map[string]interface{}{{"name": "sepia"}},
			},
			"unknown operation: sepia",
		},
		{
			"invalid parameter",
			map[string]interface{}{
				"path":       imgPath,
				"operations": []map[string]interface{}{{"name": "median", "params": map[string]interface{}{"size": -1}}},
			},
			"size",
		},
		{
			"invalid format",
			map[string]interface{}{
				"path":   imgPath,
				"output": map[string]interface{}{"format": "webp"},
			},
			"format",
		},
		{
			"invalid quality",
			map[string]interface{}{
				"path":   imgPath,
				"output": map[string]interface{}{"format": "jpeg", "quality": 101},
			},
			"quality",
		},
		{
			"same file",
			map[string]interface{}{
				"path":   imgPath,
				"output": map[string]interface{}{"path": imgPath},
			},
			"Cannot use same file for input and output",
		},
		{
			"bad base64",
			map[string]interface{}{"data": "!!!"},
			"invalid base64 data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			expectToolError(t, callTool(t, s, "image_process", tt.args), tt.contains)
		})
	}
}

func TestHandleImageVariants(t *testing.T) {
	s := newTestServer(t)
	imgPath := createTestImageFile(t, 100, 100, color.RGBA{200, 100, 50, 255})
	outDir := t.TempDir()

	var res variantsResult
	decodeResult(t, callTool(t, s, "image_variants", map[string]interface{}{
		"path": imgPath,
		"operations": []map[string]interface{}{
			{"name": "greyscale"},
		},
		"variants": []map[string]interface{}{
			{
				"operations": []map[string]interface{}{{"name": "resize", "params": map[string]interface{}{"width": 10}}},
				"path":       filepath.Join(outDir, "small.png"),
			},
			{
				"operations": []map[string]interface{}{{"name": "resize", "params": map[string]interface{}{"width": 30}}},
				"format":     "jpeg",
			},
			{},
		},
	}), &res)

	if len(res.Variants) != 3 {
		t.Fatalf("variants: got %d, want 3", len(res.Variants))
	}
	wantWidths := []int{10, 30, 100}
	jobs := make(map[string]bool)
	for i, v := range res.Variants {
		if v == nil {
			t.Fatalf("variant %d has no result", i)
		}
		if v.Info.Width != wantWidths[i] {
			t.Errorf("variant %d width: got %d, want %d", i, v.Info.Width, wantWidths[i])
		}
		jobs[v.Job] = true
	}
	if len(jobs) != 3 {
		t.Errorf("job ids should be distinct, got %v", jobs)
	}
	if res.Variants[1].Info.Format != "jpeg" {
		t.Errorf("variant 1 format: got %s, want jpeg", res.Variants[1].Info.Format)
	}
	if _, err := os.Stat(filepath.Join(outDir, "small.png")); err != nil {
		t.Errorf("variant 0 not written: %v", err)
	}

	// The governor counters settle once every variant is done.
	c := s.gov.Counters()
	if c.Total() != 0 {
		t.Errorf("counters after variants: got %+v, want zero", c)
	}
}

func TestHandleImageVariants_Errors(t *testing.T) {
	imgPath := createTestImageFile(t, 20, 20, color.RGBA{0, 0, 0, 255})

	tests := []struct {
		name     string
		args     map[string]interface{}
		contains string
	}{
		{
			"no variants",
			map[string]interface{}{"path": imgPath},
			"at least one variant is required",
		},
		{
			"same file",
			map[string]interface{}{
				"path":     imgPath,
				"variants": []map[string]interface{}{{"path": imgPath}},
			},
			"Cannot use same file for input and output",
		},
		{
			"bad variant operation",
			map[string]interface{}{
				"path":     imgPath,
				"variants": []map[string]interface{}{{"operations": []map[string]interface{}{{"name": "nope"}}}},
			},
			"variant 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			expectToolError(t, callTool(t, s, "image_variants", tt.args), tt.contains)
		})
	}
}

func TestHandlePipelineCounters(t *testing.T) {
	s := newTestServer(t)

	var res countersResult
	decodeResult(t, callTool(t, s, "pipeline_counters", map[string]interface{}{}), &res)

	if res.Concurrency != 2 {
		t.Errorf("concurrency: got %d, want 2", res.Concurrency)
	}
	if res.Total != 0 || res.Queue != 0 || res.Process != 0 {
		t.Errorf("idle counters: got %+v", res)
	}
	if res.PixelLimit <= 0 {
		t.Errorf("pixelLimit: got %d, want the default ceiling", res.PixelLimit)
	}
	if res.Cache.Items.Max != 100 {
		t.Errorf("cache items max: got %d, want 100", res.Cache.Items.Max)
	}
}

func TestHandlePipelineSettings(t *testing.T) {
	s := newTestServer(t)

	var res countersResult
	decodeResult(t, callTool(t, s, "pipeline_settings", map[string]interface{}{
		"concurrency": 3,
		"pixelLimit":  1000,
		"cache":       false,
	}), &res)

	if res.Concurrency != 3 {
		t.Errorf("concurrency: got %d, want 3", res.Concurrency)
	}
	if res.PixelLimit != 1000 {
		t.Errorf("pixelLimit: got %d, want 1000", res.PixelLimit)
	}
	if res.Cache.Items.Max != 0 || res.Cache.Memory.Max != 0 {
		t.Errorf("disabled cache: got %+v", res.Cache)
	}

	decodeResult(t, callTool(t, s, "pipeline_settings", map[string]interface{}{
		"cache": map[string]interface{}{"items": 5},
	}), &res)
	if res.Cache.Items.Max != 5 {
		t.Errorf("cache items max: got %d, want 5", res.Cache.Items.Max)
	}
	if res.Cache.Memory.Max != 50 {
		t.Errorf("cache memory max: got %d, want default 50", res.Cache.Memory.Max)
	}

	// The new pixel limit applies to later pipelines.
	imgPath := createTestImageFile(t, 40, 40, color.RGBA{0, 0, 0, 255})
	resp := callTool(t, s, "image_process", map[string]interface{}{"path": imgPath})
	if resp.Error == nil {
		t.Error("40x40 input should exceed a 1000 pixel limit")
	}
}

func TestHandlePipelineSettings_Invalid(t *testing.T) {
	s := newTestServer(t)

	expectToolError(t, callTool(t, s, "pipeline_settings", map[string]interface{}{"concurrency": -1}), "concurrency")
	expectToolError(t, callTool(t, s, "pipeline_settings", map[string]interface{}{"cache": "lots"}), "cache must be a boolean or an object")
}
