package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ivlev/framescroll/internal/engine"
	"github.com/ivlev/framescroll/internal/loader"
	"github.com/ivlev/framescroll/internal/logging"
)

func newLoadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load every frame once and report how it went",
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

			start := time.Now()
			var firstFrame time.Duration
			cb := progressCallbacks(cmd, log)
			onFirst := cb.OnFirstFrame
			cb.OnFirstFrame = func() {
				firstFrame = time.Since(start)
				onFirst()
			}

			player.Start(cmd.Context(), cb)
			if err := player.Wait(cmd.Context()); err != nil {
				return err
			}
			elapsed := time.Since(start)

			st := player.Status()
			first := "never"
			if st.FirstFrame {
				first = firstFrame.Round(time.Millisecond).String()
			}
			rows := [][]string{
				{"Frames", humanize.Comma(int64(st.Total))},
				{"Ready", humanize.Comma(int64(st.Ready))},
				{"Failed", humanize.Comma(int64(st.Failed))},
				{"Progress", strconv.Itoa(st.Percent) + "%"},
				{"First frame", first},
				{"Complete", yesNo(st.Complete)},
				{"Total time", elapsed.Round(time.Millisecond).String()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Load", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

			if st.Ready == 0 {
				return fmt.Errorf("none of %d frames could be loaded", st.Total)
			}
			return nil
		},
	}
}

// progressCallbacks draws a progress bar on an interactive stderr and falls
// back to log lines every 10 percent otherwise.
func progressCallbacks(cmd *cobra.Command, log zerolog.Logger) loader.Callbacks {
	cb := loader.Callbacks{
		OnFirstFrame: func() { log.Debug().Msg("first frame ready") },
		OnComplete:   func() { log.Debug().Msg("all frames settled") },
	}

	if logging.IsTerminal(cmd.ErrOrStderr()) {
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("frames"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		cb.OnProgress = func(percent int) { _ = bar.Set(percent) }
		cb.OnComplete = func() { _ = bar.Finish() }
		return cb
	}

	last := -1
	cb.OnProgress = func(percent int) {
		if step := percent / 10; step != last {
			last = step
			log.Info().Int("percent", percent).Msg("loading")
		}
	}
	return cb
}

// waitFirstFrame starts the player and returns once frame 0 settled or the
// whole sequence did.
func waitFirstFrame(cmd *cobra.Command, player *engine.Player, cb loader.Callbacks) error {
	ready := make(chan struct{})
	onFirst := cb.OnFirstFrame
	cb.OnFirstFrame = func() {
		if onFirst != nil {
			onFirst()
		}
		close(ready)
	}
	player.Start(cmd.Context(), cb)

	select {
	case <-ready:
		return nil
	case <-player.Done():
		return nil
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
}
