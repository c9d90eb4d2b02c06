package main

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"
)

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	var (
		output   string
		progress float64
		offset   float64
		partial  bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render the surface at one scroll position into a PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			log := ctx.logger(cmd, cfg)
			player, err := ctx.newPlayer(cfg, log)
			if err != nil {
				return err
			}

			cb := progressCallbacks(cmd, log)
			if partial {
				if err := waitFirstFrame(cmd, player, cb); err != nil {
					return err
				}
			} else {
				player.Start(cmd.Context(), cb)
				if err := player.Wait(cmd.Context()); err != nil {
					return err
				}
			}

			u := player.Scroll(progress)
			if cmd.Flags().Changed("offset") {
				u = player.ScrollTo(offset)
			}
			if !u.Drawn {
				return fmt.Errorf("no frame available for index %d", u.Index)
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := png.Encode(f, player.Snapshot()); err != nil {
				f.Close()
				return fmt.Errorf("encode %s: %w", output, err)
			}
			if err := f.Close(); err != nil {
				return err
			}

			log.Info().
				Str("output", output).
				Int("index", u.Index).
				Int("source", u.Source).
				Strs("revealed", player.Status().Revealed).
				Msg("snapshot written")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "snapshot.png", "PNG file to write")
	cmd.Flags().Float64Var(&progress, "progress", 0, "Scroll progress in [0,1]")
	cmd.Flags().Float64Var(&offset, "offset", 0, "Scroll offset in pixels, mapped through the pin")
	cmd.Flags().BoolVar(&partial, "partial", false, "Render as soon as the first frame is in, using the nearest loaded frame")
	return cmd
}
