package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codegate-dev/codegate/pkg/receipts"
)

var receiptLimit int

var receiptCmd = &cobra.Command{
	Use:   "receipt [receipt-id]",
	Short: "Show recorded gate-check receipts",
	Long: `Receipt lists the most recent gate-check receipts from the local
history, newest first, or shows a single receipt by id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReceipt,
}

func init() {
	rootCmd.AddCommand(receiptCmd)
	receiptCmd.Flags().IntVar(&receiptLimit, "limit", 10, "number of receipts to list")
}

func runReceipt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := receipts.OpenSQLiteStore(filepath.Join(repoRoot, cfg.ReceiptDB))
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		r, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, r)
	}

	list, err := store.List(cmd.Context(), receiptLimit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []receipts.Receipt{}
	}
	return printJSON(cmd, list)
}
