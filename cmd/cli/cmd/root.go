package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "seqctl",
	Short: "Seqctl is a command line tool for the spinframe sequence generator",
	Long: `seqctl is the command-line interface for spinframe, the 3D asset sequence generator.

spinframe renders every catalog model in every requested material at evenly spaced
rotation angles and stores the frames as {model}-{material}/{frame}.{format} for the
storefront 360° viewer. Jobs run in the background on the controller; sequences that
already exist on disk are skipped.

Common workflows:

  Generate all default materials for a model:
    seqctl submit --model ring-01

  Generate two materials as webp only, 72 frames:
    seqctl submit --model ring-01 --material platinum --material rose-gold --format webp --frames 72

  Follow a job until it finishes:
    seqctl watch <job-id>

  Inspect jobs and scheduler counters:
    seqctl jobs

  Remove a model and all of its sequences:
    seqctl models delete ring-01

Configuration:
  Flags can also be set in $HOME/.seqctl.yaml or through the environment:
    SEQCTL_URL        API endpoint (default: http://localhost:6262)
    SEQCTL_TIMEOUT    per-request timeout (default: 30s)`,
}

func Execute() error {
	return rootCmd.Execute()
}

const defaultTimeout = 30 * time.Second

func initConfig() {
	viper.SetEnvPrefix("SEQCTL")
	viper.AutomaticEnv()

	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			// No home directory: flags and environment only.
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".seqctl")
		viper.SetConfigType("yaml")
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	case cfgFile != "" || !errors.As(err, &notFound):
		fmt.Fprintln(os.Stderr, "Ignoring config file:", err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.seqctl.yaml)")
	flags.String("url", "http://localhost:6262", "spinframe controller URL")
	flags.Duration("timeout", defaultTimeout, "per-request timeout")

	viper.BindPFlag("url", flags.Lookup("url"))
	viper.BindPFlag("timeout", flags.Lookup("timeout"))
}

func newClient() *SeqClient {
	c := NewSeqClient(viper.GetString("url"))
	if d := viper.GetDuration("timeout"); d > 0 {
		c.HTTPClient.Timeout = d
	}
	return c
}
