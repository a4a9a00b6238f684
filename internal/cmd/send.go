package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tlqiu/quic3/internal/client"
)

type SendFlags struct {
	ServerAddr string
	ServerName string
	CACertFile string
	FilePath   string
	ChunkSize  int
}

var sendFlags SendFlags

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a file to a server",
	Long: `Send one file to a quic3 server. The server's identity is validated
against the trust-anchor certificate before any file data leaves this
machine. The command exits non-zero unless the server acknowledged the full
byte count.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateSendFlags(&sendFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClient(&sendFlags)
	},
}

func validateSendFlags(flags *SendFlags) error {
	if flags.FilePath == "" {
		return fmt.Errorf("file path is required")
	}
	if flags.ServerAddr == "" {
		return fmt.Errorf("server address is required")
	}
	if flags.ServerName == "" {
		return fmt.Errorf("server name is required")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendFlags.ServerAddr, "server", "s", "127.0.0.1:4433", "Server address")
	sendCmd.Flags().StringVar(&sendFlags.ServerName, "server-name", "localhost", "Expected server name for TLS validation")
	sendCmd.Flags().StringVar(&sendFlags.CACertFile, "ca-cert", "certs/server-cert.pem", "Trust-anchor certificate for validating the server")
	sendCmd.Flags().StringVarP(&sendFlags.FilePath, "file", "f", "", "Path of the file to send (required)")
	sendCmd.Flags().IntVar(&sendFlags.ChunkSize, "chunk-size", 0, "Read/write chunk size in bytes (default 64 KiB)")

	_ = sendCmd.MarkFlagRequired("file")

	_ = viper.BindPFlag("send.server", sendCmd.Flags().Lookup("server"))
	_ = viper.BindPFlag("send.server_name", sendCmd.Flags().Lookup("server-name"))
	_ = viper.BindPFlag("send.ca_cert", sendCmd.Flags().Lookup("ca-cert"))
}

func runClient(flags *SendFlags) error {
	cfg.Client.ServerAddr = flags.ServerAddr
	cfg.Client.ServerName = flags.ServerName
	cfg.Client.CACertFile = flags.CACertFile
	if flags.ChunkSize > 0 {
		cfg.Transfer.ChunkSize = flags.ChunkSize
	}

	c := client.New(cfg, log)
	c.ShowProgress(true)

	res, err := c.Send(signalContext(), flags.FilePath)
	if err != nil {
		return err
	}

	log.Infof("Sent %q (%s) in %s, acknowledged by server",
		res.Name, humanize.Bytes(uint64(res.Sent)), res.Duration.Round(time.Millisecond))
	return nil
}
