package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/framescroll/internal/config"
	"github.com/ivlev/framescroll/internal/director"
	"github.com/ivlev/framescroll/internal/engine"
	"github.com/ivlev/framescroll/internal/system"
	"github.com/ivlev/framescroll/internal/video"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		output    string
		fps       int
		duration  float64
		encoder   string
		quality   int
		audioPath string
		audioSync bool
		scenario  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a full top-to-bottom scroll into a video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig(cmd)
			if err != nil {
				return err
			}
			log := ctx.logger(cmd, cfg)

			opts := engine.ExportOptions{
				FPS:          cfg.Export.FPS,
				Duration:     cfg.Export.Duration,
				VideoEncoder: cfg.Export.VideoEncoder,
				Quality:      cfg.Export.Quality,
				AudioPath:    audioPath,
			}
			if cmd.Flags().Changed("fps") {
				opts.FPS = fps
			}
			if cmd.Flags().Changed("duration") {
				opts.Duration = duration
			}
			if cmd.Flags().Changed("encoder") {
				opts.VideoEncoder = encoder
			}
			if cmd.Flags().Changed("quality") {
				opts.Quality = quality
			}

			if opts.AudioPath == "" {
				if latest, err := system.FindLatestAudio("input/audio"); err == nil {
					opts.AudioPath = latest
					log.Info().Str("audio", latest).Msg("using latest audio")
				}
			}
			if opts.AudioPath != "" && audioSync {
				if d, err := system.GetAudioDuration(opts.AudioPath); err == nil {
					opts.Duration = d
					log.Info().Float64("duration", d).Msg("duration follows audio")
				} else {
					log.Warn().Err(err).Msg("could not read audio duration")
				}
			}

			opts.Scenario, err = resolveScenario(scenario, cfg, opts.Duration)
			if err != nil {
				return err
			}

			if opts.VideoEncoder == "" {
				opts.VideoEncoder = system.GetBestH264Encoder()
				if opts.VideoEncoder != "libx264" {
					log.Info().Str("encoder", opts.VideoEncoder).Msg("hardware encoder detected")
				}
			}
			if opts.Quality == 0 {
				opts.Quality = system.DefaultQuality(opts.VideoEncoder)
			}

			if output == "" {
				output = defaultOutputPath(cfg.Sequence.BasePath, time.Now())
			}
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				return err
			}

			player, err := ctx.newPlayer(cfg, log)
			if err != nil {
				return err
			}
			player.Start(cmd.Context(), progressCallbacks(cmd, log))

			report, err := engine.Export(cmd.Context(), player, &video.FFmpegEncoder{}, output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames in %s\n", output, report.Frames, report.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Video path (default output/<sequence>_<timestamp>.mp4)")
	cmd.Flags().IntVar(&fps, "fps", 30, "Frames per second")
	cmd.Flags().Float64Var(&duration, "duration", 8, "Length of the scroll in seconds")
	cmd.Flags().StringVar(&encoder, "encoder", "", "ffmpeg video encoder (default: best available H.264)")
	cmd.Flags().IntVar(&quality, "quality", 0, "Quality (0 = auto; x264 CRF, VideoToolbox bitrate = Q*100 kbit/s)")
	cmd.Flags().StringVar(&audioPath, "audio", "", "Audio track (default: latest file in input/audio/)")
	cmd.Flags().BoolVar(&audioSync, "audio-sync", true, "Match the video length to the audio track")
	cmd.Flags().StringVar(&scenario, "scenario", "", "Scroll scenario: a YAML file, \"latest\" from scenarios/, \"none\" for a plain sweep (default: stop at every reveal row)")
	return cmd
}

// resolveScenario picks the scroll script for an export. An empty name plans
// one from the reveal rows.
func resolveScenario(name string, cfg *config.Config, duration float64) (*director.Scenario, error) {
	switch name {
	case "none":
		return nil, nil
	case "":
		if len(cfg.Reveal) == 0 || duration <= 0 {
			return nil, nil
		}
		return director.NewDirector().GenerateScenario(engine.Thresholds(cfg.Reveal), duration)
	case "latest":
		path, err := director.FindLatestScenario(scenarioDir)
		if err != nil {
			return nil, err
		}
		return director.ReadScenario(path)
	default:
		return director.ReadScenario(name)
	}
}

func defaultOutputPath(base string, now time.Time) string {
	name := filepath.Base(strings.TrimRight(base, "/"))
	if name == "" || name == "." || name == "/" {
		name = "sequence"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", name, now.Format("2006-01-02_15-04-05")))
}
