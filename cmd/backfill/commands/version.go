package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teranos/backfill/display"
	"github.com/teranos/backfill/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show backfill version information",
	Long:  `Display version, build time, commit hash, and platform information for the backfill binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		format := display.FormatText
		if display.ShouldOutputJSON(cmd) {
			format = display.FormatJSON
		}
		return display.Output(cmd.OutOrStdout(), format, info, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "%s\nPlatform: %s\nGo: %s\n", info.String(), info.Platform, info.GoVersion)
			return err
		})
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
