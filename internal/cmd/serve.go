package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tlqiu/quic3/internal/server"
	"github.com/tlqiu/quic3/internal/store"
)

type ServeFlags struct {
	Addr         string
	CertFile     string
	KeyFile      string
	OutputDir    string
	DBPath       string
	MaxTransfers int64
}

var serveFlags ServeFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive files from clients",
	Long: `Run the receiving endpoint. Every connected client may send one file per
stream; each file is stored in the output directory under a unique name and
recorded in the transfer ledger. A self-signed certificate is generated at
the configured paths when none exists; hand the certificate to clients as
their trust anchor.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return validateServeFlags(&serveFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(&serveFlags)
	},
}

func validateServeFlags(flags *ServeFlags) error {
	if flags.Addr == "" {
		return fmt.Errorf("listen address is required")
	}
	if flags.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if flags.MaxTransfers <= 0 {
		return fmt.Errorf("max-transfers must be positive")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.Addr, "addr", "a", "0.0.0.0:4433", "Address to listen on")
	serveCmd.Flags().StringVar(&serveFlags.CertFile, "cert", "certs/server-cert.pem", "TLS certificate path (generated if missing)")
	serveCmd.Flags().StringVar(&serveFlags.KeyFile, "key", "certs/server-key.pem", "TLS private key path (generated if missing)")
	serveCmd.Flags().StringVarP(&serveFlags.OutputDir, "output", "o", "received", "Directory where received files are written")
	serveCmd.Flags().StringVar(&serveFlags.DBPath, "db", "transfers.db", "Path of the transfer ledger database")
	serveCmd.Flags().Int64Var(&serveFlags.MaxTransfers, "max-transfers", 32, "Maximum number of simultaneous incoming transfers")

	_ = viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("serve.output", serveCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("serve.db", serveCmd.Flags().Lookup("db"))
}

func runServer(flags *ServeFlags) error {
	cfg.Server.Addr = flags.Addr
	cfg.Server.CertFile = flags.CertFile
	cfg.Server.KeyFile = flags.KeyFile
	cfg.Server.OutputDir = flags.OutputDir
	cfg.Server.DBPath = flags.DBPath
	cfg.Server.MaxActiveTransfers = flags.MaxTransfers

	if err := os.MkdirAll(cfg.Server.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	db, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, log, store.NewTransferStore(db))
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	return srv.Serve(signalContext())
}
