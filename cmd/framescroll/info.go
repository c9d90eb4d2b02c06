package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/framescroll/internal/config"
	"github.com/ivlev/framescroll/internal/engine"
	"github.com/ivlev/framescroll/internal/source"
	"github.com/ivlev/framescroll/internal/system"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info [dir]",
		Short: "Describe a frame sequence and the host it would load on",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.Sequence.BasePath
			if len(args) == 1 {
				dir = args[0]
			}

			rows := [][]string{}
			seq := engine.SequenceFromConfig(cfg)
			seq.BasePath = dir

			if isPDF(dir) {
				pages, err := source.NewPDFSource(dir, cfg.Sequence.DPI).PageCount()
				if err != nil {
					return err
				}
				seq.TotalFrames = pages
				rows = append(rows,
					[]string{"Document", dir},
					[]string{"Pages", strconv.Itoa(pages)},
				)
			} else if isRemote(dir) {
				rows = append(rows,
					[]string{"Source", dir},
					[]string{"Frames (configured)", strconv.Itoa(seq.TotalFrames)},
				)
			} else {
				info, err := system.DetectSequence(dir, "")
				if err != nil {
					return err
				}
				seq.Prefix, seq.Digits, seq.Ext, seq.TotalFrames = info.Prefix, info.Digits, info.Ext, info.Count
				rows = append(rows,
					[]string{"Directory", info.Dir},
					[]string{"Pattern", fmt.Sprintf("%s%s.%s", info.Prefix, strings.Repeat("#", info.Digits), info.Ext)},
					[]string{"Frames", strconv.Itoa(info.Count)},
					[]string{"First", info.First},
					[]string{"Last", info.Last},
					[]string{"Size on disk", humanize.Bytes(uint64(info.Bytes))},
				)
				if info.Count != cfg.Sequence.TotalFrames {
					rows = append(rows, []string{"Configured frames", fmt.Sprintf("%d (differs)", cfg.Sequence.TotalFrames)})
				}
			}

			src := source.For(dir, sourceOptions(cfg))
			if w, h, err := source.Dimensions(cmd.Context(), src, seq.Path(0)); err == nil {
				rows = append(rows, []string{"Frame size", fmt.Sprintf("%dx%d", w, h)})
			} else {
				rows = append(rows, []string{"Frame size", "unreadable: " + err.Error()})
			}

			rows = append(rows, loaderRows(cfg)...)

			if host, err := system.Probe(); err == nil {
				rows = append(rows,
					[]string{"Logical CPUs", strconv.Itoa(host.LogicalCPUs)},
					[]string{"Memory available", humanize.Bytes(host.AvailableMemory) + " of " + humanize.Bytes(host.TotalMemory)},
					[]string{"Recommended concurrency", strconv.Itoa(system.RecommendedConcurrency(host))},
				)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Property", "Value"}, rows, nil))
			return nil
		},
	}
}

func loaderRows(cfg *config.Config) [][]string {
	concurrency := "auto"
	if cfg.Loader.MaxConcurrent > 0 {
		concurrency = strconv.Itoa(cfg.Loader.MaxConcurrent)
	}
	cutoff := cfg.Loader.HighPriorityCutoff
	return [][]string{
		{"High priority frames", fmt.Sprintf("1-%d", cutoff-1)},
		{"Idle decoded frames", fmt.Sprintf("%d-%d", cutoff, cfg.Sequence.TotalFrames-1)},
		{"Concurrency per tier", concurrency},
	}
}

func isPDF(base string) bool {
	return strings.HasSuffix(strings.ToLower(base), ".pdf")
}

func isRemote(base string) bool {
	lower := strings.ToLower(base)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
