package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/framescroll/internal/logging"
	"github.com/ivlev/framescroll/internal/source"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var (
		output  string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "extract <document.pdf>",
		Short: "Rasterize the pages of a PDF into a numbered frame sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			log := ctx.logger(cmd, cfg)

			doc := args[0]
			pdf := source.NewPDFSource(doc, cfg.Sequence.DPI)
			pages, err := pdf.PageCount()
			if err != nil {
				return err
			}
			if pages == 0 {
				return fmt.Errorf("%s has no pages", doc)
			}
			if err := os.MkdirAll(output, 0755); err != nil {
				return err
			}

			in := source.Sequence{BasePath: doc, Prefix: cfg.Sequence.Prefix, Digits: cfg.Sequence.Digits, Ext: "png", TotalFrames: pages}
			out := in
			out.BasePath = output

			var bar *progressbar.ProgressBar
			if logging.IsTerminal(cmd.ErrOrStderr()) {
				bar = progressbar.NewOptions(pages,
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("pages"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}

			sizes := make([]int64, pages)
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(workers, 1))
			for i := 0; i < pages; i++ {
				g.Go(func() error {
					n, err := extractPage(gctx, pdf, in.Path(i), out.Path(i))
					if err != nil {
						return fmt.Errorf("page %d: %w", i+1, err)
					}
					sizes[i] = n
					if bar != nil {
						_ = bar.Add(1)
					}
					log.Debug().Int("page", i+1).Str("file", out.Path(i)).Msg("page extracted")
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			var total int64
			for _, n := range sizes {
				total += n
			}
			rows := [][]string{
				{"Pages", strconv.Itoa(pages)},
				{"Directory", output},
				{"Pattern", filepath.Base(out.Path(0))},
				{"Size on disk", humanize.Bytes(uint64(total))},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Extract", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "input/sequence", "Directory for the frames")
	cmd.Flags().IntVar(&workers, "workers", 4, "Pages rendered in parallel")
	return cmd
}

// extractPage copies the rendered page straight to dst.
func extractPage(ctx context.Context, pdf *source.PDFSource, page, dst string) (int64, error) {
	rc, err := pdf.Open(ctx, page, source.PriorityNormal)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, rc)
	if err != nil {
		f.Close()
		return 0, err
	}
	return n, f.Close()
}
