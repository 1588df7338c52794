package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// resetViper clears viper config between tests for isolation
func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("SEQCTL")
	viper.AutomaticEnv()
}

// resetFlags restores every flag of every command to its default, since cobra keeps
// parsed values on the shared command tree between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes seqctl against url with args and returns everything it printed.
func runCLI(t *testing.T, url string, args ...string) string {
	t.Helper()
	resetViper()
	resetFlags(rootCmd)
	viper.Set("url", url)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return stdout.String()
}
