package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fbkclanna/lockscan/internal/config"
	"github.com/fbkclanna/lockscan/internal/workspace"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "lockscan",
		Short:             "Generate SBOMs and hermetic build environments from lockfiles",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}

	cmd.PersistentFlags().String("source", ".", "Source directory")
	cmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/lockscan/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		newParseCmd(),
		newScanCmd(),
		newGenerateEnvCmd(),
		newMergeSBOMsCmd(),
		newStatusCmd(),
		newInitCmd(),
		newDoctorCmd(),
	)

	return cmd
}

// loadConfig reads the config file and environment, then applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg))
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	lvl, _ := config.ParseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadWorkspace loads the source directory and its request file. The
// configured request file is used unless --request names one.
func loadWorkspace(cmd *cobra.Command, cfg *config.Config) (*workspace.Context, error) {
	source, _ := cmd.Flags().GetString("source")
	requestPath := ""
	if f := cmd.Flags().Lookup("request"); f != nil {
		requestPath = f.Value.String()
	}
	if requestPath == "" && cfg.RequestFile != workspace.DefaultRequestFile {
		requestPath = cfg.RequestFile
	}
	return workspace.Load(source, requestPath)
}
