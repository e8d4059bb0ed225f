package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-pipeline/pkg/pipeline"
	"github.com/ironsheep/image-pipeline/pkg/pipeline/model"
)

func newInfoCmd(flags *globalFlags) *cobra.Command {
	var withStats, asJSON bool
	cmd := &cobra.Command{
		Use:   "info <input>",
		Short: "Print image metadata and, optionally, pixel statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gov, err := flags.governor()
			if err != nil {
				return err
			}
			p, err := pipeline.New(args[0], pipeline.WithGovernor(gov), pipeline.WithLogger(flags.logger()))
			if err != nil {
				return err
			}
			meta, err := p.Metadata(cmd.Context())
			if err != nil {
				return err
			}
			var stats *model.Stats
			if withStats {
				if stats, err = p.Stats(cmd.Context()); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, meta, stats)
			}
			fmt.Fprintln(out, pathStyle.Render(args[0]))
			fmt.Fprintln(out, metadataTable(meta))
			if stats != nil {
				fmt.Fprintln(out, statsTable(stats))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withStats, "stats", false, "also compute pixel statistics")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeJSON(w io.Writer, meta *model.Metadata, stats *model.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Metadata *model.Metadata `json:"metadata"`
		Stats    *model.Stats    `json:"stats,omitempty"`
	}{meta, stats})
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return keyStyle
			default:
				return valueStyle
			}
		})
}

// metadataRows lists the populated metadata fields in display order.
func metadataRows(m *model.Metadata) [][]string {
	rows := [][]string{
		{"format", m.Format.String()},
		{"size", fmt.Sprintf("%dx%d", m.Width, m.Height)},
		{"space", m.Space},
		{"channels", strconv.Itoa(m.Channels)},
		{"depth", m.Depth},
		{"alpha", strconv.FormatBool(m.HasAlpha)},
		{"profile", strconv.FormatBool(m.HasProfile)},
		{"exif", strconv.FormatBool(m.Exif)},
	}
	if m.Size > 0 {
		rows = append(rows, []string{"bytes", strconv.Itoa(m.Size)})
	}
	if m.Density > 0 {
		rows = append(rows, []string{"density", strconv.FormatFloat(m.Density, 'f', -1, 64)})
	}
	if m.Orientation > 0 {
		rows = append(rows, []string{"orientation", strconv.Itoa(m.Orientation)})
	}
	if m.Pages > 1 {
		rows = append(rows,
			[]string{"pages", strconv.Itoa(m.Pages)},
			[]string{"page height", strconv.Itoa(m.PageHeight)},
			[]string{"loop", strconv.Itoa(m.Loop)},
		)
		delays := make([]string, len(m.Delay))
		for i, d := range m.Delay {
			delays[i] = strconv.Itoa(d)
		}
		rows = append(rows, []string{"delay (ms)", strings.Join(delays, ", ")})
	}
	return rows
}

func metadataTable(m *model.Metadata) string {
	return newTable("field", "value").Rows(metadataRows(m)...).String()
}

var channelLabels = []string{"0", "1", "2", "3"}

// statsRows lists one row per channel followed by the image summary.
func statsRows(s *model.Stats) [][]string {
	rows := make([][]string, 0, len(s.Channels)+3)
	for i, c := range s.Channels {
		rows = append(rows, []string{
			"channel " + channelLabels[i],
			strconv.Itoa(int(c.Min)),
			strconv.Itoa(int(c.Max)),
			strconv.FormatFloat(c.Mean, 'f', 2, 64),
			strconv.FormatFloat(c.Stdev, 'f', 2, 64),
		})
	}
	rows = append(rows,
		[]string{"entropy", strconv.FormatFloat(s.Entropy, 'f', 3, 64), "", "", ""},
		[]string{"opaque", strconv.FormatBool(s.IsOpaque), "", "", ""},
		[]string{"dominant", s.DominantHex, "", "", ""},
	)
	return rows
}

func statsTable(s *model.Stats) string {
	return newTable("", "min", "max", "mean", "stdev").Rows(statsRows(s)...).String()
}
