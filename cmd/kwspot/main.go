// Command kwspot listens to a microphone or replays a WAV file and reports
// the keywords it recognises.
package main

import (
	"fmt"
	"os"

	"github.com/realtime-ai/keyword-spotter/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

type rootFlags struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	v := config.New()

	root := &cobra.Command{
		Use:           "kwspot",
		Short:         "Keyword spotting on live or recorded 16 kHz audio",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().String("log-path", "", "JSON detection log")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("paths.log", root.PersistentFlags().Lookup("log-path"))

	load := func() (*config.Config, *logrus.Logger, error) {
		return loadConfig(v, flags)
	}

	root.AddCommand(
		newListenCmd(v, load),
		newReplayCmd(v, load),
		newLogsCmd(load),
		newConfigCmd(load),
	)
	return root
}

func loadConfig(v *viper.Viper, flags rootFlags) (*config.Config, *logrus.Logger, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(v, flags.configFile)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(cfg.Level())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kwspot:", err)
		os.Exit(1)
	}
}
