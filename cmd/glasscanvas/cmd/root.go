package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MeKo-Tech/glasscanvas/internal/config"
	"github.com/MeKo-Tech/glasscanvas/internal/version"
)

// configKeyAnnotation marks a flag as an override for a config key.
const configKeyAnnotation = "glasscanvas_config_key"

// app carries the state shared by one command tree.
type app struct {
	loader  *config.Loader
	config  *config.Config
	cfgFile string
}

// NewRootCommand builds a fresh command tree with its own config loader.
func NewRootCommand() *cobra.Command {
	a := &app{loader: config.NewIsolatedLoader()}

	rootCmd := &cobra.Command{
		Use:   "glasscanvas",
		Short: "Turn photos into traceable line art",
		Long: `GlassCanvas rotates, crops, adjusts and stylizes photos into images that are
easy to trace: outlines, pencil sketches, crayon drawings, posterized
abstracts and more, with an optional grid overlay.

This tool provides:
- A one-shot process command for single images
- A parallel batch command for folders of images
- An HTTP server with sessions and live WebSocket previews
- A bench command comparing style backends

Examples:
  glasscanvas process photo.jpg --style "magic outline" --grid
  glasscanvas batch photos/ --output-dir traced --style pencil-sketch
  glasscanvas serve --port 8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "glasscanvas version "+version.String())
				return nil
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bindFlags(cmd); err != nil {
				return err
			}
			if err := a.loadConfig(); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), a.config)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/glasscanvas, /etc/glasscanvas)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("version", false, "print version information and exit")
	annotate(pf, "verbose", "verbose")
	annotate(pf, "log-level", "log_level")

	rootCmd.AddCommand(
		newProcessCommand(a),
		newBatchCommand(a),
		newServeCommand(a),
		newStylesCommand(a),
		newBenchCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// annotate ties flag name in fs to config key so it overrides the file and
// environment when set.
func annotate(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

// bindFlags binds the annotated flags of the running command. Only the
// running command binds, so commands sharing a key do not shadow each other.
func (a *app) bindFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = a.loader.GetViper().BindPFlag(keys[0], f)
	})
	return bindErr
}

func (a *app) loadConfig() error {
	var err error
	if a.cfgFile != "" {
		a.config, err = a.loader.LoadWithFile(a.cfgFile)
	} else {
		a.config, err = a.loader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	return nil
}

// setupLogging installs a JSON slog handler at the configured level. Logs
// go to stderr so stdout stays usable for image and data URI output.
func setupLogging(w io.Writer, cfg *config.Config) {
	var logLevel slog.Level
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
