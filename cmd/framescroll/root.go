package main

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ivlev/framescroll/internal/config"
	"github.com/ivlev/framescroll/internal/engine"
	"github.com/ivlev/framescroll/internal/logging"
	"github.com/ivlev/framescroll/internal/source"
	"github.com/ivlev/framescroll/internal/system"
)

// commandContext holds the persistent flags shared by every subcommand.
type commandContext struct {
	configPath string
	logLevel   string
	logFormat  string

	base        string
	prefix      string
	ext         string
	digits      int
	dpi         int
	frames      int
	concurrency int
	cutoff      int
	width       int
	height      int
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "framescroll",
		Short:         "Scroll-driven image sequence player",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Configuration file (.yaml or .toml)")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&ctx.logFormat, "log-format", "", "Log format: auto, console, json")
	flags.StringVar(&ctx.base, "base", "", "Frame directory or http(s) URL")
	flags.StringVar(&ctx.prefix, "prefix", "", "Frame file name prefix")
	flags.StringVar(&ctx.ext, "ext", "", "Frame file extension")
	flags.IntVar(&ctx.digits, "digits", 0, "Zero padding of the frame number")
	flags.IntVar(&ctx.dpi, "dpi", 0, "Rasterization DPI when --base is a PDF (0 = 150)")
	flags.IntVar(&ctx.frames, "frames", 0, "Total number of frames")
	flags.IntVar(&ctx.concurrency, "concurrency", 0, "In-flight frames per priority tier (0 = from host)")
	flags.IntVar(&ctx.cutoff, "cutoff", 0, "First frame index of the low priority tier")
	flags.IntVar(&ctx.width, "width", 0, "Surface width")
	flags.IntVar(&ctx.height, "height", 0, "Surface height")

	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newLoadCommand(ctx))
	rootCmd.AddCommand(newSnapshotCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newScenarioCommand(ctx))
	rootCmd.AddCommand(newExtractCommand(ctx))

	return rootCmd
}

// loadConfig reads the config file, if any, and layers explicitly set flags
// on top.
func (c *commandContext) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = c.logFormat
	}
	if changed("base") {
		cfg.Sequence.BasePath = c.base
	}
	if changed("prefix") {
		cfg.Sequence.Prefix = c.prefix
	}
	if changed("ext") {
		cfg.Sequence.Ext = c.ext
	}
	if changed("digits") {
		cfg.Sequence.Digits = c.digits
	}
	if changed("dpi") {
		cfg.Sequence.DPI = c.dpi
	}
	if changed("frames") {
		cfg.Sequence.TotalFrames = c.frames
		// Keep the cutoff inside a shorter sequence unless it was set too.
		if !changed("cutoff") && cfg.Loader.HighPriorityCutoff > c.frames {
			cfg.Loader.HighPriorityCutoff = c.frames
		}
	}
	if changed("concurrency") {
		cfg.Loader.MaxConcurrent = c.concurrency
	}
	if changed("cutoff") {
		cfg.Loader.HighPriorityCutoff = c.cutoff
	}
	if changed("width") {
		cfg.Surface.Width = c.width
	}
	if changed("height") {
		cfg.Surface.Height = c.height
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *commandContext) logger(cmd *cobra.Command, cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
}

// newPlayer builds a player for cfg. The shared engine state is initialized on
// first use.
func (c *commandContext) newPlayer(cfg *config.Config, log zerolog.Logger) (*engine.Player, error) {
	if engine.Init() {
		if limit, err := system.RaiseOpenFileLimit(2048); err != nil {
			log.Debug().Err(err).Msg("could not raise open file limit")
		} else {
			log.Debug().Uint64("nofile", limit).Msg("open file limit")
		}
	}

	src := source.For(cfg.Sequence.BasePath, sourceOptions(cfg))
	return engine.NewPlayer(cfg, src, log)
}

func sourceOptions(cfg *config.Config) source.Options {
	return source.Options{
		HTTP: source.HTTPOptions{Timeout: time.Duration(cfg.Loader.RequestTimeoutMs) * time.Millisecond},
		DPI:  cfg.Sequence.DPI,
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
