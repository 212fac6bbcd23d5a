package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/glasscanvas/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
		Long: `Configuration is read from glasscanvas.yaml in the search paths below,
then from GLASSCANVAS_* environment variables (e.g. GLASSCANVAS_SERVER_PORT),
then from command-line flags. Later sources win.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			var (
				data []byte
				err  error
			)
			switch format {
			case "yaml", "":
				data, err = config.MarshalYAML(a.config)
			case "json":
				data, err = json.MarshalIndent(a.config, "", "  ")
				data = append(data, '\n')
			default:
				return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
			}
			if err != nil {
				return err
			}
			if used := a.loader.GetConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "# loaded from %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringP("format", "f", "yaml", "output format (yaml, json)")

	initCmd := &cobra.Command{
		Use:   "init [FILE]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				filename = args[0]
			}
			if err := config.GenerateDefaultConfigFile(filename); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", filename)
			return nil
		},
	}

	paths := &cobra.Command{
		Use:   "paths",
		Short: "List the directories searched for a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range config.GetConfigSearchPaths() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.AddCommand(show, initCmd, paths)
	return cmd
}
