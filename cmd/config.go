package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iksnae/copilot-session/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change persisted settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved settings",
	Long: `Print the settings after applying config.yaml, .env, the environment
and command-line flags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, dateStyle.Render("# state dir: "+cfg.StateDir))
		_, _ = fmt.Fprint(out, string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a setting to config.yaml",
	Long: `Persist a setting to config.yaml in the state directory.

Keys: base_url, timeout, transport, model, temperature, mode, cache_dir`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(&cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✅ %s = %s", args[0], args[1])))
		return nil
	},
}

func setConfigValue(cfg *internal.Config, key, value string) error {
	switch key {
	case "base_url":
		cfg.BaseURL = strings.TrimRight(value, "/")
	case "timeout":
		timeout, err := internal.ParseTimeout(value)
		if err != nil {
			return &internal.ValidationError{Field: key, Reason: err.Error()}
		}
		cfg.Timeout = timeout
	case "transport":
		cfg.Transport = value
	case "model":
		cfg.Model = value
	case "temperature":
		temp, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &internal.ValidationError{Field: key, Reason: err.Error()}
		}
		cfg.Temperature = temp
	case "mode":
		cfg.Mode = value
	case "cache_dir":
		cfg.CacheDir = value
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
