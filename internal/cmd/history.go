package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tlqiu/quic3/internal/store"
)

type HistoryFlags struct {
	DBPath string
	Limit  int
}

var historyFlags HistoryFlags

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded transfers",
	Long:  `List the most recent transfers from the server's ledger, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(&historyFlags)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyFlags.DBPath, "db", "transfers.db", "Path of the transfer ledger database")
	historyCmd.Flags().IntVarP(&historyFlags.Limit, "limit", "n", 20, "Maximum number of transfers to list")
}

func runHistory(flags *HistoryFlags) error {
	if _, err := os.Stat(flags.DBPath); err != nil {
		return fmt.Errorf("no transfer ledger at %s", flags.DBPath)
	}

	db, err := store.Open(flags.DBPath)
	if err != nil {
		return err
	}

	rows, err := store.NewTransferStore(db).Recent(flags.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No transfers recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPEER\tFILE\tSIZE\tSTATUS")
	for _, row := range rows {
		status := row.Status
		if row.Status == store.StatusFailed && row.Error != "" {
			status = fmt.Sprintf("%s (%s)", row.Status, row.Error)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			time.Unix(row.StartedAt, 0).Format(time.DateTime),
			row.Peer,
			row.Name,
			humanize.Bytes(uint64(row.Bytes)),
			status,
		)
	}
	return w.Flush()
}
