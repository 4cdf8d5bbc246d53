package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/shopdesk/internal/seed"
	"github.com/spf13/cobra"
)

var seedConcurrency int

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load demo customers and conversations",
	Long: `Replay a YAML fixture of customers and conversations into the database.
Customer messages open their conversation on first write; operator messages
go through the same dual write the console uses. Connected consoles see the
conversations arrive live.

Examples:
  shopdesk seed testdata/demo.yaml
  shopdesk seed demo.yaml --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVarP(&seedConcurrency, "concurrency", "c", 4, "conversations replayed in parallel")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fixture, err := seed.Load(args[0])
	if err != nil {
		return err
	}

	store, err := getDB(ctx)
	if err != nil {
		return err
	}

	res, err := seed.Apply(ctx, store, fixture, seed.Options{
		Concurrency: seedConcurrency,
		OperatorID:  operatorID,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Customers:      %d\n", res.Customers)
	fmt.Fprintf(out, "Conversations:  %d\n", res.Conversations)
	fmt.Fprintf(out, "Messages:       %d\n", res.Messages)
	if len(res.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors (%d):\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  • %s\n", e)
		}
		return fmt.Errorf("%d conversations failed", len(res.Errors))
	}
	return nil
}
