package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// execute runs the root command with args and captures its output.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetCommandState()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	_, err = rootCmd.ExecuteC()
	stopProfiling(rootCmd, nil)
	return out.String(), errOut.String(), err
}

// resetCommandState restores every flag to its default so tests do not see
// each other's flags.
func resetCommandState() {
	cfgFile = ""
	verbose = false
	profileMode = ""
	profileDir = "."
	resetFlags(rootCmd.PersistentFlags())
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		resetFlags(c.Flags())
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}
