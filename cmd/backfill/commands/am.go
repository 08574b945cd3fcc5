package commands

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/backfill/am"
	"github.com/teranos/backfill/display"
	"github.com/teranos/backfill/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage backfill configuration",
	Long: `am — Manage backfill configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (BACKFILL_* prefix, DATABASE_URL)
3. Project config (am.toml in the working directory or a parent)
4. User config (~/.backfill/am.toml)
5. System config (/etc/backfill/am.toml)
6. Default values

--config replaces steps 3 to 5 with a single file.

Examples:
  backfill am show                    # Show current configuration
  backfill am show --format json      # Show configuration in JSON format
  backfill am get pool.workers        # Get specific config value
  backfill am init ./am.toml          # Write a starter configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration from all sources. The database URL is redacted.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., pool.workers, journal.dir)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration file",
	Long: `Write the default configuration to path (default ./am.toml).
An existing file is kept unless --force is given, in which case it is
rotated into .back1 to .back3 first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmInit,
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	cfg = cfg.Redacted()

	format, _ := cmd.Flags().GetString("format")
	if display.ShouldOutputJSON(cmd) {
		format = "json"
	}
	w := cmd.OutOrStdout()

	switch format {
	case "json":
		return display.Output(w, display.FormatJSON, cfg, nil)

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(w, "# backfill configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(w, "# backfill configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}

	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v, err := configViper(cmd)
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	if key == "database.url" {
		return errors.WithHint(errors.New("database.url is not printed"), "use `backfill am show` for a redacted view")
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	// loadConfig validates
	if _, err := loadConfig(cmd); err != nil {
		return errors.Wrap(err, "configuration is invalid")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := "am.toml"
	if len(args) > 0 {
		path = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return errors.WithHint(errors.Newf("%s already exists", path), "pass --force to overwrite it")
	}
	if err := am.WriteConfig(path, am.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
