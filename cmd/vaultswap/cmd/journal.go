package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lugondev/go-vaultswap/internal/storage"
	"github.com/lugondev/go-vaultswap/internal/storage/postgres"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the transaction journal",
	Long:  `Commands for reading committed and aborted transactions and decoded pool events from the journal backend.`,
}

var journalTxsCmd = &cobra.Command{
	Use:   "txs",
	Short: "List recent transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		account, _ := cmd.Flags().GetString("account")
		format, _ := cmd.Flags().GetString("output")

		return withJournal(cmd.Context(), func(repo storage.Repository) error {
			var (
				txs []*storage.TransactionModel
				err error
			)
			if account != "" {
				key, kerr := resolveKey(account)
				if kerr != nil {
					return kerr
				}
				txs, err = repo.Transactions().FindByAccountKey(cmd.Context(), key.String(), limit, 0)
			} else {
				txs, err = repo.Transactions().FindRecent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if format == "yaml" {
				return writeYAML(cmd.OutOrStdout(), txs)
			}

			out := cmd.OutOrStdout()
			for _, tx := range txs {
				status := "ok"
				if !tx.Success {
					status = tx.ErrorCode
				}
				fmt.Fprintf(out, "%8d  %-88s  %-22s  %d ix\n", tx.Slot, tx.Signature, status, tx.NumInstructions)
			}
			return nil
		})
	},
}

var journalEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List decoded pool events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		name, _ := cmd.Flags().GetString("name")
		format, _ := cmd.Flags().GetString("output")

		return withJournal(cmd.Context(), func(repo storage.Repository) error {
			var (
				events []*storage.EventModel
				err    error
			)
			if name != "" {
				events, err = repo.Events().FindByEventName(cmd.Context(), name, limit, 0)
			} else {
				events, err = repo.Events().FindByProgramID(cmd.Context(), cfg.Ledger.ProgramID, limit, 0)
			}
			if err != nil {
				return err
			}
			if format == "yaml" {
				return writeYAML(cmd.OutOrStdout(), events)
			}

			out := cmd.OutOrStdout()
			for _, event := range events {
				fmt.Fprintf(out, "%8d  %-16s  %s\n", event.Slot, event.EventName, event.Signature)
				for _, key := range slices.Sorted(maps.Keys(event.Data)) {
					fmt.Fprintf(out, "          %-12s %v\n", key, event.Data[key])
				}
			}
			return nil
		})
	},
}

var journalMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Show or roll back the PostgreSQL journal schema",
	Long: `Opening a PostgreSQL journal applies pending migrations. This command lists
them, or rolls back the newest ones with --down.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		down, _ := cmd.Flags().GetInt("down")

		return withJournal(cmd.Context(), func(repo storage.Repository) error {
			pg, ok := repo.(*postgres.PostgresRepository)
			if !ok {
				return fmt.Errorf("journal backend %q has no schema migrations", cfg.Database.Type)
			}
			migrator := pg.Migrator()
			out := cmd.OutOrStdout()

			if down > 0 {
				n, err := migrator.Down(cmd.Context(), down)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "rolled back %d migration(s)\n", n)
				return nil
			}

			status, err := migrator.Status(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range status {
				mark := " "
				if s.Applied {
					mark = "x"
				}
				fmt.Fprintf(out, "[%s] %3d  %s\n", mark, s.Version, s.Description)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalMigrateCmd)
	journalMigrateCmd.Flags().Int("down", 0, "number of migrations to roll back")
	journalCmd.AddCommand(journalTxsCmd)
	journalCmd.AddCommand(journalEventsCmd)

	for _, c := range []*cobra.Command{journalTxsCmd, journalEventsCmd} {
		c.Flags().Int("limit", 20, "maximum number of entries")
		c.Flags().StringP("output", "o", "text", "output format (text, yaml)")
	}
	journalTxsCmd.Flags().String("account", "", "only transactions touching this address")
	journalEventsCmd.Flags().String("name", "", "only events with this name (PoolInitialized, Swapped)")
}

// withJournal opens the journal backend without rebuilding the ledger.
func withJournal(ctx context.Context, fn func(repo storage.Repository) error) error {
	if !cfg.Database.Enabled {
		return fmt.Errorf("the journal is disabled (database.enabled is false)")
	}
	conn, err := storage.NewConnectionManager(&cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	repo, err := conn.Connect(ctx)
	if err != nil {
		return err
	}
	return fn(repo)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
