package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ironsheep/image-pipeline/pkg/imgerr"
	"github.com/ironsheep/image-pipeline/pkg/pipeline"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

// convertFlags are the operations and output settings of convert.
type convertFlags struct {
	resize       string
	fit          string
	rotate       float64
	autoOrient   bool
	flip         bool
	flop         bool
	greyscale    bool
	blur         float64
	sharpen      float64
	ops          string
	format       string
	quality      int
	keepMetadata bool
	timeout      int
}

func newConvertCmd(flags *globalFlags) *cobra.Command {
	cf := &convertFlags{}
	cmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Apply operations to an image and write the result",
		Long: "convert reads <input>, applies the requested operations and writes <output>. " +
			"Use - for either to read stdin or write stdout. The output format follows --format, " +
			"then the output extension, then the input format.",
		Example: "  image-pipeline convert in.jpg out.png --resize 800x600 --fit inside\n" +
			"  cat in.png | image-pipeline convert - - --greyscale --format jpeg > out.jpg\n" +
			"  image-pipeline convert in.png out.png --ops '[{\"name\":\"modulate\",\"params\":{\"saturation\":0.5}}]'",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gov, err := flags.governor()
			if err != nil {
				return err
			}
			p, err := openInput(args[0], pipeline.WithGovernor(gov), pipeline.WithLogger(flags.logger()))
			if err != nil {
				return err
			}
			p.OnWarning(func(w imgerr.Warning) {
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("warning: ")+w.String())
			})
			if err := cf.apply(p); err != nil {
				return err
			}
			return convert(cmd.Context(), p, args[0], args[1], cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cf.resize, "resize", "", "target size as WIDTHxHEIGHT, WIDTH or xHEIGHT")
	f.StringVar(&cf.fit, "fit", "", "resize fit: cover, contain, fill, inside, outside")
	f.Float64Var(&cf.rotate, "rotate", 0, "rotate by degrees")
	f.BoolVar(&cf.autoOrient, "auto-orient", false, "rotate according to EXIF orientation")
	f.BoolVar(&cf.flip, "flip", false, "mirror vertically")
	f.BoolVar(&cf.flop, "flop", false, "mirror horizontally")
	f.BoolVar(&cf.greyscale, "greyscale", false, "convert to greyscale")
	f.Float64Var(&cf.blur, "blur", 0, "gaussian blur sigma")
	f.Float64Var(&cf.sharpen, "sharpen", 0, "sharpen sigma")
	f.StringVar(&cf.ops, "ops", "", `further operations as JSON: [{"name":"...","params":{...}}]`)
	f.StringVar(&cf.format, "format", "", "output format: "+strings.Join(model.FormatNames(), ", "))
	f.IntVar(&cf.quality, "quality", 0, "JPEG quality 1-100")
	f.BoolVar(&cf.keepMetadata, "keep-metadata", false, "carry EXIF and ICC metadata to the output")
	f.IntVar(&cf.timeout, "timeout", 0, "processing timeout in seconds")
	return cmd
}

// openInput builds a pipeline reading path, or stdin for "-".
func openInput(path string, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	if path == "-" {
		return pipeline.New(nil, opts...)
	}
	return pipeline.New(path, opts...)
}

// parseSize accepts WIDTHxHEIGHT, WIDTH or xHEIGHT.
func parseSize(v string) (int, int, error) {
	ws, hs, _ := strings.Cut(strings.ToLower(v), "x")
	var w, h int
	var err error
	if ws != "" {
		if w, err = strconv.Atoi(ws); err != nil {
			return 0, 0, fmt.Errorf("invalid resize width %q", ws)
		}
	}
	if hs != "" {
		if h, err = strconv.Atoi(hs); err != nil {
			return 0, 0, fmt.Errorf("invalid resize height %q", hs)
		}
	}
	return w, h, nil
}

// apply records the flag operations on p. Geometry runs in a fixed order:
// resize, rotate, flip, flop, then any --ops entries.
func (cf *convertFlags) apply(p *pipeline.Pipeline) error {
	if cf.autoOrient {
		p.AutoOrient(true)
	}
	if cf.resize != "" {
		w, h, err := parseSize(cf.resize)
		if err != nil {
			return err
		}
		p.ResizeWith(model.Resize{Width: w, Height: h, Fit: model.Fit(cf.fit)})
	}
	if cf.rotate != 0 {
		p.Rotate(cf.rotate)
	}
	p.Flip(cf.flip).Flop(cf.flop).Greyscale(cf.greyscale)
	if cf.blur != 0 {
		p.Blur(cf.blur)
	}
	if cf.sharpen != 0 {
		p.Sharpen(cf.sharpen)
	}
	if cf.ops != "" {
		var ops []struct {
			Name   string          `json:"name"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal([]byte(cf.ops), &ops); err != nil {
			return fmt.Errorf("invalid --ops: %w", err)
		}
		for _, o := range ops {
			op, err := model.DecodeOperation(o.Name, o.Params)
			if err != nil {
				return err
			}
			p.Operation(op)
		}
	}
	if cf.format != "" {
		p.ToFormat(cf.format)
	}
	if cf.quality != 0 {
		p.JPEG(model.JPEGOptions{Quality: cf.quality})
	}
	if cf.keepMetadata {
		p.KeepMetadata(true)
	}
	if cf.timeout != 0 {
		p.Timeout(cf.timeout)
	}
	return p.Err()
}

// convert executes p. Stdin input is streamed into the pipeline while it
// waits; stdout output is copied from the output stream.
func convert(ctx context.Context, p *pipeline.Pipeline, in, out string, stdin io.Reader, stdout, stderr io.Writer) error {
	if in == "-" {
		go func() {
			if _, err := p.ReadFrom(stdin); err != nil {
				fmt.Fprintln(stderr, warnStyle.Render("warning: ")+"reading stdin: "+err.Error())
			}
			p.Close()
		}()
	}

	if out == "-" {
		s := p.Stream(ctx)
		defer s.Close()
		if _, err := io.Copy(stdout, s); err != nil {
			return err
		}
		return s.Err()
	}

	info, err := p.ToFile(ctx, out)
	if err != nil {
		return err
	}
	fmt.Fprintln(stderr, renderInfo(out, info))
	return nil
}

// renderInfo summarises the written output.
func renderInfo(path string, info model.Info) string {
	return fmt.Sprintf("%s %s %dx%d %s, %d channels, %d bytes",
		okStyle.Render("wrote"), pathStyle.Render(path), info.Width, info.Height, info.Format, info.Channels, info.Size)
}
