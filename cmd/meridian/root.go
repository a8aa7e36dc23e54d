package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/cli"
)

var (
	// Global flags
	cfgFile     string
	verbose     bool
	profileMode string
	profileDir  string
)

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Meridian - rule engine for computed business attributes",
	Long: `Meridian evaluates business attributes that are computed from other
attributes by rules written in a small expression language.

It provides:
  - A rule language with arithmetic, string, list, regex and lookup functions
  - Dependency-ordered derivation with cycle detection and failure isolation
  - Catalog linting with source-located diagnostics
  - Rule unit tests, hot-reloading catalogs and Prometheus metrics`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: startProfiling,
	PersistentPostRun: stopProfiling,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	stopProfiling(rootCmd, nil)
	if err != nil && !cli.Silent(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&profileMode, "profile", "",
		"write a profile: "+strings.Join(profileModeNames(), ", "))
	rootCmd.PersistentFlags().StringVar(&profileDir, "profile-dir", ".", "directory for profile output")
}

var profileModes = map[string]func(*profile.Profile){
	"block":     profile.BlockProfile,
	"cpu":       profile.CPUProfile,
	"goroutine": profile.GoroutineProfile,
	"heap":      profile.MemProfileHeap,
	"mem":       profile.MemProfile,
	"mutex":     profile.MutexProfile,
	"trace":     profile.TraceProfile,
}

func profileModeNames() []string {
	return []string{"block", "cpu", "goroutine", "heap", "mem", "mutex", "trace"}
}

var profiler interface{ Stop() }

func startProfiling(cmd *cobra.Command, args []string) error {
	if profileMode == "" {
		return nil
	}
	mode, ok := profileModes[strings.ToLower(profileMode)]
	if !ok {
		return cli.NewConfigError("--profile", fmt.Sprintf("unknown mode %q, want one of %s",
			profileMode, strings.Join(profileModeNames(), ", ")))
	}
	opts := []func(*profile.Profile){mode, profile.ProfilePath(profileDir), profile.NoShutdownHook}
	if !verbose {
		opts = append(opts, profile.Quiet)
	}
	profiler = profile.Start(opts...)
	return nil
}

func stopProfiling(cmd *cobra.Command, args []string) {
	if profiler != nil {
		profiler.Stop()
		profiler = nil
	}
}
