package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	// Version is set during build
	Version = "dev"
	// Commit is set during build
	Commit = "none"
	// BuildDate is set during build
	BuildDate = "unknown"
)

// buildInfo holds what the binary knows about itself.
type buildInfo struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
}

// resolveBuildInfo prefers linker-set values and falls back to the module
// and VCS data embedded by the go toolchain.
func resolveBuildInfo(read func() (*debug.BuildInfo, bool)) buildInfo {
	info := buildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	bi, ok := read()
	if !ok {
		return info
	}
	if bi.GoVersion != "" {
		info.GoVersion = bi.GoVersion
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		info := resolveBuildInfo(debug.ReadBuildInfo)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "slotwise %s\n", info.Version)
		fmt.Fprintf(out, "  commit: %s\n", info.Commit)
		fmt.Fprintf(out, "  built:  %s\n", info.BuildDate)
		fmt.Fprintf(out, "  go:     %s\n", info.GoVersion)

		// The schema line is best effort; version must work offline.
		if app := GetApp(); app != nil && app.Migrator != nil {
			if v, err := app.Migrator.Version(cmd.Context()); err == nil {
				fmt.Fprintf(out, "  schema: %d\n", v)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
