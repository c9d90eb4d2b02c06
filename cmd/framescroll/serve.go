package main

import (
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/ivlev/framescroll/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		bind  string
		watch bool
		qr    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve rendered frames over HTTP, driven by scroll position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch && ctx.configPath == "" {
				return errors.New("--watch needs --config")
			}
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			log := ctx.logger(cmd, cfg)
			player, err := ctx.newPlayer(cfg, log)
			if err != nil {
				return err
			}

			player.Start(cmd.Context(), progressCallbacks(cmd, log))

			srv := server.New(player, log)
			if err := srv.Start(cmd.Context(), bind); err != nil {
				return err
			}

			url := "http://" + srv.Addr().String() + "/frame.png"
			fmt.Fprintln(cmd.OutOrStdout(), url)
			if qr {
				code, err := qrText(url)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), code)
			}

			if watch {
				w := server.NewConfigWatcher(ctx.configPath, player, log)
				go func() {
					if err := w.Run(cmd.Context()); err != nil {
						log.Error().Err(err).Msg("config watcher stopped")
					}
				}()
			}

			<-cmd.Context().Done()
			log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "127.0.0.1:8080", "Listen address")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload reveal rows, pin and surface size when the config file changes")
	cmd.Flags().BoolVar(&qr, "qr", false, "Print a QR code of the frame URL for opening it on a phone")
	return cmd
}

// qrText renders url as a QR code made of terminal block characters.
func qrText(url string) (string, error) {
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return code.ToSmallString(false), nil
}
