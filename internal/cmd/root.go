// Package cmd wires the quic3 command-line surface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tlqiu/quic3/internal/config"
	"github.com/tlqiu/quic3/internal/logger"
)

var (
	cfg     *config.Config
	log     *logrus.Logger
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "quic3",
	Short: "One-shot file transfer over QUIC",
	Long: `quic3 transfers a single file per invocation over a QUIC connection.

The server accepts any number of concurrent clients and stores each incoming
file in its output directory under a collision-free name. The client sends
one file per run and exits non-zero unless the server acknowledged the full
byte count.

  Receive files:  quic3 serve --output ./received
  Send a file:    quic3 send --server host:4433 --file ./report.pdf`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()

		cfg = config.NewDefaultConfig()
		applyViper(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		log = logger.New(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.quic3.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.SetEnvPrefix("QUIC3")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in the config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".quic3")
	}

	_ = viper.ReadInConfig()
}

// applyViper overlays config-file and environment values onto the defaults.
// Command flags are bound to the same keys and win when set.
func applyViper(c *config.Config) {
	if v := viper.GetString("log_level"); v != "" {
		c.LogLevel = v
	}
	if v := viper.GetInt("transfer.chunk_size"); v != 0 {
		c.Transfer.ChunkSize = v
	}
	if v := viper.GetDuration("transfer.max_idle_timeout"); v != 0 {
		c.Transfer.MaxIdleTimeout = v
	}
	if v := viper.GetDuration("transfer.keep_alive_period"); v != 0 {
		c.Transfer.KeepAlivePeriod = v
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received interrupt signal, shutting down...")
		cancel()
	}()

	return ctx
}
