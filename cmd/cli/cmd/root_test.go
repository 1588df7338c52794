package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestRootCommand_EnvOverridesURL(t *testing.T) {
	resetViper()
	t.Setenv("SEQCTL_URL", "http://spinframe.internal:8080")

	if got := viper.GetString("url"); got != "http://spinframe.internal:8080" {
		t.Errorf("url = %q, want value from SEQCTL_URL", got)
	}
}

func TestRootCommand_Help(t *testing.T) {
	resetViper()
	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"--help"})

	if err := rootCmd.Execute(); err != nil {
		t.Errorf("--help returned error: %v", err)
	}
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range []string{"submit", "status", "jobs", "cancel", "watch", "models", "resources"} {
		if !registered[name] {
			t.Errorf("subcommand %q is not registered", name)
		}
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	resetViper()
	rootCmd.SetArgs([]string{"render-everything"})

	if err := Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestInitConfig_ReadsFile(t *testing.T) {
	resetViper()
	path := filepath.Join(t.TempDir(), "seqctl.yaml")
	if err := os.WriteFile(path, []byte("url: http://from-config:9999\ntimeout: 5s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })
	initConfig()

	if got := viper.GetString("url"); got != "http://from-config:9999" {
		t.Errorf("url = %q, want value from config file", got)
	}
	if got := newClient().HTTPClient.Timeout; got != 5*time.Second {
		t.Errorf("client timeout = %v, want 5s", got)
	}
}

func TestInitConfig_MissingFileKeepsDefaults(t *testing.T) {
	resetViper()
	cfgFile = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { cfgFile = "" })
	initConfig()

	c := newClient()
	if c.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("client timeout = %v, want %v", c.HTTPClient.Timeout, defaultTimeout)
	}
}
