package cmd

import (
	"chschema/internal/report"
	"chschema/pkg/config"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X chschema/cmd.Version=...".
var Version = "dev"

var (
	cfgFile  string
	cfg      config.Config
	reporter *report.Reporter
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chschema",
	Short: "Declarative ClickHouse schema migrations",
	Long: `chschema turns declarative ClickHouse schema files into reviewed,
risk-classified migrations and applies them with a checksummed journal.

Examples:
  chschema generate --name add_events
  chschema migrate
  chschema migrate --execute --allow-destructive
  chschema status -o json
  chschema graph -f graphviz --file schema.dot`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the CLI and returns the process exit code. An interrupt
// cancels the run between migrations.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return report.ExitOK
	}
	if reporter == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if cmd != nil && strings.Contains(err.Error(), "flag") {
			fmt.Fprintln(os.Stderr, cmd.UsageString())
		}
		return report.ExitError
	}
	return reporter.Fail(err)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.chschema.yaml or $HOME/.chschema.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "Output format: text, json")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringSliceP("schema", "s", nil, "Schema files or directories (default: schema)")
	rootCmd.PersistentFlags().StringP("migrations-dir", "m", "", "Directory holding migrations and snapshots (default: migrations)")

	viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("schema.paths", rootCmd.PersistentFlags().Lookup("schema"))
	viper.BindPFlag("migrations.dir", rootCmd.PersistentFlags().Lookup("migrations-dir"))

	config.SetDefaults(viper.GetViper())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".chschema")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CHSCHEMA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setup loads the configuration and builds the logger and reporter shared
// by every command.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	reporter, err = report.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Output.Format, cmd.Name())
	if err != nil {
		return err
	}
	logger.Debug("configuration loaded", "command", cmd.Name(), "run_id", reporter.RunID())
	return nil
}
