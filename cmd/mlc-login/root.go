package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "MLC_LOGIN"

	defaultDBPath = "mlc-login.db"
)

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "mlc-login",
		Short:         "MLC OAuth login for CTF platforms",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Configure the client and serve logins
  mlc-login config set oauth_client_id my-client
  mlc-login config set oauth_client_secret s3cr3t
  mlc-login config set registration_visibility mlc
  mlc-login serve --listen :8000 --metrics-listen :9100

  # Override credentials at deploy time
  OAUTH_CLIENT_ID=my-client OAUTH_CLIENT_SECRET=s3cr3t mlc-login serve`,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("db", defaultDBPath, "path to the SQLite database")
	persistent.String("log-level", "info", "log level (debug, info, warn, error)")
	persistent.String("log-format", "text", "log format (text, json)")
	bindFlags(v, persistent, "db", "log-level", "log-format")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(newServeCommand(v))
	cmd.AddCommand(newConfigCommand(v))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		flag := flags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := v.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}
}

func newLogger(v *viper.Viper) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(v.GetString("log-level")))); err != nil {
		return nil, fmt.Errorf("parse log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(v.GetString("log-format"))); format {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log-format %q", format)
	}
	return slog.New(handler).With("app", "mlc-login"), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mlc-login version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mlc-login %s\n", version)
			return err
		},
	}
}
