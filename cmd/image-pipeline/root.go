package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/image-pipeline/internal/log"
	"github.com/ironsheep/image-pipeline/pkg/governor"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	concurrency int
	pixelLimit  int64
	logLevel    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{pixelLimit: -1}

	root := &cobra.Command{
		Use:           "image-pipeline",
		Short:         "image-pipeline - resize, convert and inspect images",
		Long:          "image-pipeline builds image processing pipelines from the command line, or serves them to MCP clients over stdio.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("image-pipeline %s\n  Build time: %s\n  Git commit: %s\n", Version, BuildTime, GitCommit))
	root.SetHelpCommand(&cobra.Command{Hidden: true})

	pf := root.PersistentFlags()
	pf.IntVar(&flags.concurrency, "concurrency", 0, "executions allowed at once (default: number of CPUs)")
	pf.Int64Var(&flags.pixelLimit, "pixel-limit", -1, "default input pixel ceiling, 0 to disable")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (overrides "+log.EnvLevel+")")

	root.AddCommand(
		newServeCmd(flags),
		newConvertCmd(flags),
		newInfoCmd(flags),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// logger returns the process logger at the requested level.
func (f *globalFlags) logger() *logrus.Logger {
	l := log.GetLogger()
	if f.logLevel != "" {
		lvl, err := logrus.ParseLevel(f.logLevel)
		if err == nil {
			l.SetLevel(lvl)
		}
	}
	return l
}

// governor applies the global limits to the process-wide governor.
func (f *globalFlags) governor() (*governor.Governor, error) {
	g := governor.Default()
	if f.concurrency != 0 {
		if _, err := g.SetConcurrency(f.concurrency); err != nil {
			return nil, err
		}
	}
	if f.pixelLimit >= 0 {
		if _, err := g.SetPixelLimit(f.pixelLimit); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "image-pipeline %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}
}
