package server

import (
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// sourceProperties describes where a pipeline reads its input from. Exactly
// one of path, data, create is expected; raw qualifies data.
func sourceProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the input image file",
		},
		"data": map[string]interface{}{
			"type":        "string",
			"description": "Base64-encoded input image or raw pixel data",
		},
		"create": map[string]interface{}{
			"type":        "object",
			"description": "Blank canvas instead of an input image",
			"properties": map[string]interface{}{
				"width":      map[string]interface{}{"type": "integer"},
				"height":     map[string]interface{}{"type": "integer"},
				"channels":   map[string]interface{}{"type": "integer", "description": "3 or 4 (default: 4)"},
				"background": map[string]interface{}{"type": "string", "description": "CSS colour (default: black)"},
			},
			"required": []string{"width", "height"},
		},
		"raw": map[string]interface{}{
			"type":        "object",
			"description": "Describes data as uncompressed interleaved pixels",
			"properties": map[string]interface{}{
				"width":      map[string]interface{}{"type": "integer"},
				"height":     map[string]interface{}{"type": "integer"},
				"channels":   map[string]interface{}{"type": "integer", "description": "1 to 4"},
				"depth":      map[string]interface{}{"type": "string", "enum": []string{model.DepthUchar, model.DepthUshort, model.DepthFloat}},
				"pageHeight": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"width", "height", "channels"},
		},
		"density": map[string]interface{}{
			"type":        "number",
			"description": "DPI for vector input (default: 72)",
		},
		"pages": map[string]interface{}{
			"type":        "integer",
			"description": "Number of pages to read, -1 for all (default: 1)",
		},
		"page": map[string]interface{}{
			"type":        "integer",
			"description": "First page to read (default: 0)",
		},
		"limitInputPixels": map[string]interface{}{
			"type":        "integer",
			"description": "Reject inputs with more pixels than this, 0 for no limit",
		},
		"unlimited": map[string]interface{}{
			"type":        "boolean",
			"description": "Remove all input size safety limits",
		},
		"failOnError": map[string]interface{}{
			"type":        "boolean",
			"description": "Fail on corrupt input instead of warning (default: true)",
		},
	}
}

// outputProperties describes the encoded output of image_process.
func outputProperties() map[string]interface{} {
	return map[string]interface{}{
		"format": map[string]interface{}{
			"type":        "string",
			"description": "Output format; defaults to the output path extension, then the input format",
			"enum":        model.FormatNames(),
		},
		"quality": map[string]interface{}{
			"type":        "integer",
			"description": "JPEG quality 1-100 (default: 80)",
		},
		"compressionLevel": map[string]interface{}{
			"type":        "integer",
			"description": "PNG zlib level 0-9 (default: 6)",
		},
		"colours": map[string]interface{}{
			"type":        "integer",
			"description": "GIF palette size 2-256 (default: 256)",
		},
		"compression": map[string]interface{}{
			"type":        "string",
			"description": "TIFF compression (default: deflate)",
			"enum":        []string{model.TIFFNone, model.TIFFDeflate},
		},
		"keepMetadata": map[string]interface{}{
			"type":        "boolean",
			"description": "Carry EXIF and ICC metadata to the output where possible",
		},
		"timeout": map[string]interface{}{
			"type":        "integer",
			"description": "Processing timeout in seconds, 0 for none",
		},
	}
}

var operationsSchema = map[string]interface{}{
	"type":        "array",
	"description": "Operations in call order. Geometry operations run in the order given; other operations keep one slot each and run in a fixed order.",
	"items": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Operation name, e.g. resize, extract, rotate, blur, sharpen, greyscale, modulate",
			},
			"params": map[string]interface{}{
				"type":        "object",
				"description": "Operation parameters; omitted fields keep their defaults",
			},
		},
		"required": []string{"name"},
	},
}

func merge(maps ...map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Input Description
		{
			Name:        "image_metadata",
			Description: "Describe an input image: format, dimensions, channels, colour space, density, orientation and animation details. Operations are not applied.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": sourceProperties(),
			},
		},
		{
			Name:        "image_stats",
			Description: "Compute per-channel pixel statistics of an input image, its entropy, opacity and dominant colours.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": sourceProperties(),
			},
		},

		// Processing
		{
			Name:        "image_process",
			Description: "Run a pipeline of operations on an input image and write the result to a file, or return it base64-encoded when no output path is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(sourceProperties(), map[string]interface{}{
					"operations": operationsSchema,
					"output": map[string]interface{}{
						"type":        "object",
						"description": "Output settings",
						"properties": merge(outputProperties(), map[string]interface{}{
							"path": map[string]interface{}{
								"type":        "string",
								"description": "Absolute path of the output file",
							},
						}),
					},
				}),
			},
		},
		{
			Name:        "image_variants",
			Description: "Read one input once and produce several outputs from it concurrently, each with its own operations and output settings. Shared operations apply to every variant.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(sourceProperties(), map[string]interface{}{
					"operations": operationsSchema,
					"variants": map[string]interface{}{
						"type":        "array",
						"description": "One entry per output",
						"items": map[string]interface{}{
							"type": "object",
							"properties": merge(outputProperties(), map[string]interface{}{
								"operations": operationsSchema,
								"path": map[string]interface{}{
									"type":        "string",
									"description": "Absolute path of the output file",
								},
							}),
						},
					},
				}),
				"required": []string{"variants"},
			},
		},

		// Engine Settings
		{
			Name:        "pipeline_counters",
			Description: "Report queued and processing executions together with the engine concurrency, pixel limit, SIMD state and cache usage.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "pipeline_settings",
			Description: "Change process-wide engine settings. Omitted fields are left unchanged. Returns the effective values.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"concurrency": map[string]interface{}{
						"type":        "integer",
						"description": "Executions allowed at once, 0 for the number of CPUs",
					},
					"pixelLimit": map[string]interface{}{
						"type":        "integer",
						"description": "Default input pixel ceiling, 0 to disable",
					},
					"simd": map[string]interface{}{
						"type":        "boolean",
						"description": "Use vector acceleration where the host supports it",
					},
					"cache": map[string]interface{}{
						"description": "false to disable the cache, true for defaults, or an object with memory (MB), files and items limits",
					},
				},
			},
		},
	}
}
