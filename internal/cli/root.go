// Package cli provides the Cobra-based command line of the products service.
package cli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"products/internal/config"
	"products/internal/logging"
)

// env is the state shared by every command once the root pre-run has
// loaded the configuration.
type env struct {
	v   *viper.Viper
	cfg *config.Config
	log *logrus.Logger
}

// NewRootCommand builds the command tree around v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	e := &env{v: v}
	config.SetDefaults(v)

	rootCmd := &cobra.Command{
		Use:           "products-service",
		Short:         "Product catalog service of the marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json, toml or .env)")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.String("log-format", "text", "log format: text|json")
	flags.String("db-driver", "postgres", "database driver: postgres|sqlite|memory")
	flags.String("db-dsn", "", "database DSN, built from PRODUCTS_DB_* when empty")
	flags.String("rabbitmq-url", "", "AMQP URL, events are disabled when empty")
	v.BindPFlag("CONFIG_FILE", flags.Lookup("config"))
	v.BindPFlag("LOG_LEVEL", flags.Lookup("log-level"))
	v.BindPFlag("LOG_FORMAT", flags.Lookup("log-format"))
	v.BindPFlag("DATABASE_DRIVER", flags.Lookup("db-driver"))
	v.BindPFlag("DATABASE_DSN", flags.Lookup("db-dsn"))
	v.BindPFlag("RABBITMQ_URL", flags.Lookup("rabbitmq-url"))

	serveCmd := newServeCommand(e)
	// Without a subcommand the binary serves, taking port and users URL from
	// the environment or config file.
	rootCmd.Args = cobra.NoArgs
	rootCmd.RunE = serveCmd.RunE

	rootCmd.AddCommand(
		serveCmd,
		newMigrateCommand(e),
		newEventsCommand(e),
	)
	return rootCmd
}

func (e *env) load() error {
	if file := e.v.GetString("CONFIG_FILE"); file != "" {
		e.v.SetConfigFile(file)
		if err := e.v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", file)
		}
	}

	cfg, err := config.Load(e.v)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log = log
	return nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand(viper.New()).Execute(); err != nil {
		logrus.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}
