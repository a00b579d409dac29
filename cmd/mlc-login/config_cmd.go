package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/miyoyo/CTFd-BetterPlugins/internal/util"
	"github.com/miyoyo/CTFd-BetterPlugins/settings"
	"github.com/miyoyo/CTFd-BetterPlugins/storage/sqlite"
)

// settingRule validates a stored setting value. Empty values always pass
// since they unset the key.
type settingRule func(value string) error

func oneOf(allowed ...string) settingRule {
	return func(value string) error {
		if !slices.Contains(allowed, value) {
			return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
		}
		return nil
	}
}

func nonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func anyValue(string) error { return nil }

var settingRules = map[string]settingRule{
	settings.KeyAuthorizationEndpoint:  anyValue,
	settings.KeyTokenEndpoint:          anyValue,
	settings.KeyAPIEndpoint:            anyValue,
	settings.KeyClientID:               anyValue,
	settings.KeyClientSecret:           anyValue,
	settings.KeyRegistrationVisibility: oneOf(settings.RegistrationPublic, settings.RegistrationPrivate, settings.RegistrationMLC),
	settings.KeyUserMode:               oneOf(settings.UserModeUsers, settings.UserModeTeams),
	settings.KeyNumUsers:               nonNegativeInt,
	settings.KeyNumTeams:               nonNegativeInt,
	settings.KeyTeamSize:               nonNegativeInt,
}

func validateSetting(key, value string) error {
	rule, ok := settingRules[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	if value == "" {
		return nil
	}
	if err := rule(value); err != nil {
		return fmt.Errorf("%s %w", key, err)
	}
	return nil
}

func displayValue(key, value string, reveal bool) string {
	if key == settings.KeyClientSecret && !reveal {
		return util.Redact(value, 4)
	}
	return value
}

func newConfigCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage runtime settings stored in the database",
	}
	cmd.AddCommand(newConfigSetCommand(v))
	cmd.AddCommand(newConfigGetCommand(v))
	cmd.AddCommand(newConfigListCommand(v))
	cmd.AddCommand(newConfigUnsetCommand(v))
	return cmd
}

func withStore(v *viper.Viper, fn func(*sqlite.Store) error) error {
	store, err := sqlite.Open(v.GetString("db"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func setSetting(ctx context.Context, v *viper.Viper, key, value string) error {
	value = strings.TrimSpace(value)
	if err := validateSetting(key, value); err != nil {
		return err
	}
	return withStore(v, func(store *sqlite.Store) error {
		return store.SetSetting(ctx, key, value)
	})
}

func newConfigSetCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setSetting(cmd.Context(), v, args[0], args[1])
		},
	}
}

func newConfigUnsetCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY",
		Short: "Remove a stored setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setSetting(cmd.Context(), v, args[0], "")
		},
	}
}

func newConfigGetCommand(v *viper.Viper) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a stored setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if _, ok := settingRules[key]; !ok {
				return fmt.Errorf("unknown setting %q", key)
			}
			return withStore(v, func(store *sqlite.Store) error {
				value, err := store.GetSetting(cmd.Context(), key)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), displayValue(key, value, reveal))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the client secret unmasked")
	return cmd
}

func newConfigListCommand(v *viper.Viper) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print all stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(v, func(store *sqlite.Store) error {
				values, err := store.Settings(cmd.Context())
				if err != nil {
					return err
				}
				return writeSettings(cmd.OutOrStdout(), values, reveal)
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the client secret unmasked")
	return cmd
}

func writeSettings(w io.Writer, values map[string]string, reveal bool) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, displayValue(k, values[k], reveal)); err != nil {
			return err
		}
	}
	return nil
}
