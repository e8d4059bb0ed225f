package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-pipeline/pkg/governor"
	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/imgutil"
	"github.com/ironsheep/image-pipeline/pkg/pipeline"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_process", "image_metadata").
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
		s.log.WithError(err).WithField("tool", params.Name).Warn("tool failed")
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
//  2. Builds a pipeline for the requested input
//  3. Records operations and output settings on it
//  4. Executes it and returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Input Description
	case "image_metadata":
		return s.handleImageMetadata(ctx, args)
	case "image_stats":
		return s.handleImageStats(ctx, args)

	// Processing
	case "image_process":
		return s.handleImageProcess(ctx, args)
	case "image_variants":
		return s.handleImageVariants(ctx, args)

	// Engine Settings
	case "pipeline_counters":
		return s.handlePipelineCounters()
	case "pipeline_settings":
		return s.handlePipelineSettings(args)

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

// mustMarshalJSON marshals v to a JSON string, returning "{}" on error.
func mustMarshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Shared Arguments ===

// sourceArgs selects the pipeline input and its decode hints.
type sourceArgs struct {
	Path             string             `json:"path"`
	Data             string             `json:"data"`
	Create           *model.CreateInput `json:"create"`
	Raw              *model.RawInput    `json:"raw"`
	Density          *float64           `json:"density"`
	Pages            *int               `json:"pages"`
	Page             *int               `json:"page"`
	LimitInputPixels *int64             `json:"limitInputPixels"`
	Unlimited        bool               `json:"unlimited"`
	FailOnError      *bool              `json:"failOnError"`
}

// operationArg is one recorded operation. Params decode onto the
// operation's defaults.
type operationArg struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

// outputArgs selects the output destination and encoder settings.
type outputArgs struct {
	Path             string `json:"path"`
	Format           string `json:"format"`
	Quality          *int   `json:"quality"`
	CompressionLevel *int   `json:"compressionLevel"`
	Colours          *int   `json:"colours"`
	Compression      string `json:"compression"`
	KeepMetadata     bool   `json:"keepMetadata"`
	Timeout          int    `json:"timeout"`
}

// processResult is returned for every encoded output.
type processResult struct {
	// Job identifies an image_variants output.
	Job      string     `json:"job,omitempty"`
	ID       string     `json:"id"`
	Info     model.Info `json:"info"`
	Path     string     `json:"path,omitempty"`
	Data     string     `json:"data,omitempty"`
	MimeType string     `json:"mimeType,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// warningSink collects warnings from a pipeline and its clones.
type warningSink struct {
	mu   sync.Mutex
	list []string
}

func (w *warningSink) add(warning imgerr.Warning) {
	w.mu.Lock()
	w.list = append(w.list, warning.String())
	w.mu.Unlock()
}

func (w *warningSink) snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.list...)
}

// pipelineOptions returns the dependencies every pipeline of this server uses.
func (s *Server) pipelineOptions() []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithGovernor(s.gov),
		pipeline.WithLogger(s.log),
	}
	if s.engine != nil {
		opts = append(opts, pipeline.WithEngine(s.engine))
	}
	return opts
}

func (src sourceArgs) options() []pipeline.Option {
	var opts []pipeline.Option
	if src.Raw != nil {
		opts = append(opts, pipeline.WithRaw(*src.Raw))
	}
	if src.Density != nil {
		opts = append(opts, pipeline.WithDensity(*src.Density))
	}
	if src.Pages != nil {
		opts = append(opts, pipeline.WithPages(*src.Pages))
	}
	if src.Page != nil {
		opts = append(opts, pipeline.WithPage(*src.Page))
	}
	if src.LimitInputPixels != nil {
		opts = append(opts, pipeline.WithLimitInputPixels(*src.LimitInputPixels))
	}
	if src.Unlimited {
		opts = append(opts, pipeline.WithUnlimited(true))
	}
	if src.FailOnError != nil {
		opts = append(opts, pipeline.WithFailOnError(*src.FailOnError))
	}
	return opts
}

// open builds a pipeline for src. A nil reader argument to pipeline.New
// selects stream input, which streamed reports true for.
func (s *Server) open(src sourceArgs, streamed bool) (*pipeline.Pipeline, error) {
	opts := append(s.pipelineOptions(), src.options()...)

	switch {
	case src.Create != nil:
		return pipeline.Create(*src.Create, opts...)
	case src.Data != "":
		data, err := base64.StdEncoding.DecodeString(src.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
		return pipeline.New(data, opts...)
	case src.Path != "":
		if streamed {
			return pipeline.New(nil, opts...)
		}
		return pipeline.New(src.Path, opts...)
	default:
		return nil, fmt.Errorf("one of path, data or create is required")
	}
}

// applyOperations records ops on p in order.
func applyOperations(p *pipeline.Pipeline, ops []operationArg) error {
	for _, arg := range ops {
		op, err := model.DecodeOperation(arg.Name, arg.Params)
		if err != nil {
			return err
		}
		p.Operation(op)
	}
	return p.Err()
}

// applyOutput records the encoder settings of out. Without an explicit
// format, settings apply to the format implied by the output path
// extension, or are left at their defaults.
func applyOutput(p *pipeline.Pipeline, out outputArgs) error {
	format := imgutil.Unknown
	if out.Format != "" {
		f, err := model.ParseOutputFormat(out.Format)
		if err != nil {
			return err
		}
		format = f
	} else if f, ok := imgutil.FromExtension(out.Path); ok && encoderSettings(out) {
		format = f
	}

	switch format {
	case imgutil.Unknown:
	case imgutil.JPEG:
		o := model.DefaultJPEGOptions()
		if out.Quality != nil {
			o.Quality = *out.Quality
		}
		p.JPEG(o)
	case imgutil.PNG:
		o := model.DefaultPNGOptions()
		if out.CompressionLevel != nil {
			o.CompressionLevel = *out.CompressionLevel
		}
		p.PNG(o)
	case imgutil.GIF:
		o := model.DefaultGIFOptions()
		if out.Colours != nil {
			o.Colours = *out.Colours
		}
		p.GIF(o)
	case imgutil.TIFF:
		o := model.DefaultTIFFOptions()
		if out.Compression != "" {
			o.Compression = out.Compression
		}
		p.TIFF(o)
	case imgutil.BMP:
		p.BMP()
	case imgutil.Raw:
		p.Raw()
	}
	if out.KeepMetadata {
		p.KeepMetadata(true)
	}
	if out.Timeout > 0 {
		p.Timeout(out.Timeout)
	}
	return p.Err()
}

func encoderSettings(out outputArgs) bool {
	return out.Quality != nil || out.CompressionLevel != nil || out.Colours != nil || out.Compression != ""
}

// execute runs the terminal call for out and shapes the result.
func execute(ctx context.Context, p *pipeline.Pipeline, out outputArgs, sink *warningSink) (*processResult, error) {
	res := &processResult{ID: p.ID()}
	if out.Path != "" {
		info, err := p.ToFile(ctx, out.Path)
		if err != nil {
			return nil, err
		}
		res.Info = info
		res.Path = out.Path
	} else {
		data, info, err := p.ToBuffer(ctx)
		if err != nil {
			return nil, err
		}
		res.Info = info
		res.Data = base64.StdEncoding.EncodeToString(data)
		res.MimeType = info.Format.MimeType()
	}
	res.Warnings = sink.snapshot()
	return res, nil
}

// === Input Description ===

func (s *Server) handleImageMetadata(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var src sourceArgs
	if err := unmarshalArgs(args, &src); err != nil {
		return nil, err
	}
	p, err := s.open(src, false)
	if err != nil {
		return nil, err
	}
	return p.Metadata(ctx)
}

func (s *Server) handleImageStats(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var src sourceArgs
	if err := unmarshalArgs(args, &src); err != nil {
		return nil, err
	}
	p, err := s.open(src, false)
	if err != nil {
		return nil, err
	}
	return p.Stats(ctx)
}

// === Processing ===

// processArgs is the image_process argument object.
type processArgs struct {
	sourceArgs
	Operations []operationArg `json:"operations"`
	Output     outputArgs     `json:"output"`
}

func (s *Server) handleImageProcess(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a processArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	p, err := s.open(a.sourceArgs, false)
	if err != nil {
		return nil, err
	}
	sink := &warningSink{}
	p.OnWarning(sink.add)
	if err := applyOperations(p, a.Operations); err != nil {
		return nil, err
	}
	if err := applyOutput(p, a.Output); err != nil {
		return nil, err
	}
	return execute(ctx, p, a.Output, sink)
}

// variantArg is one output of image_variants.
type variantArg struct {
	outputArgs
	Operations []operationArg `json:"operations"`
}

// variantsArgs is the image_variants argument object.
type variantsArgs struct {
	sourceArgs
	Operations []operationArg `json:"operations"`
	Variants   []variantArg   `json:"variants"`
}

// variantsResult is returned by image_variants.
type variantsResult struct {
	Variants []*processResult `json:"variants"`
	Warnings []string         `json:"warnings,omitempty"`
}

// handleImageVariants fans one input out to several outputs. A file input
// is read once and streamed into the shared pipeline; every variant is a
// clone waiting on that stream.
func (s *Server) handleImageVariants(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a variantsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Variants) == 0 {
		return nil, fmt.Errorf("at least one variant is required")
	}
	streamed := a.Create == nil && a.Data == ""
	if streamed {
		for _, v := range a.Variants {
			if v.Path != "" && filepath.Clean(v.Path) == filepath.Clean(a.Path) {
				return nil, imgerr.Inputf(imgerr.SameFile, "Cannot use same file for input and output")
			}
		}
	}

	base, err := s.open(a.sourceArgs, streamed)
	if err != nil {
		return nil, err
	}
	shared := &warningSink{}
	base.OnWarning(shared.add)
	if err := applyOperations(base, a.Operations); err != nil {
		return nil, err
	}
	sharedWarnings := shared.snapshot()

	type job struct {
		id   string
		p    *pipeline.Pipeline
		out  outputArgs
		sink *warningSink
	}
	jobs := make([]job, len(a.Variants))
	for i, v := range a.Variants {
		c := base.Clone()
		sink := &warningSink{}
		c.OnWarning(sink.add)
		if err := applyOperations(c, v.Operations); err != nil {
			return nil, fmt.Errorf("variant %d: %w", i, err)
		}
		if err := applyOutput(c, v.outputArgs); err != nil {
			return nil, fmt.Errorf("variant %d: %w", i, err)
		}
		jobs[i] = job{id: uuid.NewString(), p: c, out: v.outputArgs, sink: sink}
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]*processResult, len(jobs))
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			res, err := execute(gctx, j.p, j.out, j.sink)
			if err != nil {
				return fmt.Errorf("variant %d: %w", i, err)
			}
			res.Job = j.id
			results[i] = res
			s.log.WithField("job", j.id).WithField("pipeline", j.p.ID()).Debug("variant written")
			return nil
		})
	}
	if streamed {
		g.Go(func() error {
			return feed(base, a.Path)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &variantsResult{Variants: results, Warnings: sharedWarnings}, nil
}

// feed streams the file at path into p and closes its input.
func feed(p *pipeline.Pipeline, path string) error {
	f, err := os.Open(path)
	if err != nil {
		p.Close()
		if os.IsNotExist(err) {
			return imgerr.WrapInput(imgerr.MissingFile, err, "Input file is missing")
		}
		return err
	}
	defer f.Close()
	if _, err := p.ReadFrom(f); err != nil {
		p.Close()
		return err
	}
	return p.Close()
}

// === Engine Settings ===

// countersResult is returned by pipeline_counters and pipeline_settings.
type countersResult struct {
	Queue       int                 `json:"queue"`
	Process     int                 `json:"process"`
	Total       int                 `json:"total"`
	Concurrency int                 `json:"concurrency"`
	SIMD        bool                `json:"simd"`
	PixelLimit  int64               `json:"pixelLimit"`
	Cache       governor.CacheStats `json:"cache"`
}

func (s *Server) counters() *countersResult {
	c := s.gov.Counters()
	return &countersResult{
		Queue:       c.Queue,
		Process:     c.Process,
		Total:       c.Total(),
		Concurrency: s.gov.Concurrency(),
		SIMD:        s.gov.SIMD(),
		PixelLimit:  s.gov.PixelLimit(),
		Cache:       s.gov.Cache(),
	}
}

func (s *Server) handlePipelineCounters() (interface{}, error) {
	return s.counters(), nil
}

// settingsArgs is the pipeline_settings argument object. Cache is either a
// boolean or a limits object.
type settingsArgs struct {
	Concurrency *int            `json:"concurrency"`
	PixelLimit  *int64          `json:"pixelLimit"`
	SIMD        *bool           `json:"simd"`
	Cache       json.RawMessage `json:"cache"`
}

func (s *Server) handlePipelineSettings(args json.RawMessage) (interface{}, error) {
	var a settingsArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Concurrency != nil {
		if _, err := s.gov.SetConcurrency(*a.Concurrency); err != nil {
			return nil, err
		}
	}
	if a.PixelLimit != nil {
		if _, err := s.gov.SetPixelLimit(*a.PixelLimit); err != nil {
			return nil, err
		}
	}
	if a.SIMD != nil {
		s.gov.SetSIMD(*a.SIMD)
	}
	if len(a.Cache) > 0 {
		var on bool
		if err := json.Unmarshal(a.Cache, &on); err == nil {
			s.gov.SetCacheEnabled(on)
		} else {
			limits := governor.DefaultCacheLimits()
			if err := json.Unmarshal(a.Cache, &limits); err != nil {
				return nil, fmt.Errorf("cache must be a boolean or an object: %w", err)
			}
			if _, err := s.gov.SetCache(limits); err != nil {
				return nil, err
			}
		}
	}
	return s.counters(), nil
}
