package main

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	service "github.com/okian/harvester/internal/app"
	"github.com/okian/harvester/internal/config"
	"github.com/okian/harvester/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cli holds what the persistent flags resolve to.
type cli struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvests football fixtures and player statistics from API-Football.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file (default $"+config.EnvPrefix+"CONFIG)")
	flags.StringVar(&c.dbPath, "db", "", "SQLite database path, overrides db_path")
	flags.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error, overrides log_level")

	root.AddCommand(
		newServeCmd(c),
		newHarvestCmd(c),
		newQuotaCmd(c),
		newCursorCmd(c),
		newFakeUpstreamCmd(c),
	)
	return root
}

// load layers config, applies flag overrides and initializes logging.
func (c *cli) load(cmd *cobra.Command) error {
	ctx := cmd.Context()
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFile(ctx, c.configPath)
	} else {
		cfg, err = config.Load(ctx)
	}
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.DBPath = c.dbPath
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

func (c *cli) service(cmd *cobra.Command) (*service.Service, error) {
	return service.New(cmd.Context(), c.cfg, service.WithLogger(logger.Get()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
