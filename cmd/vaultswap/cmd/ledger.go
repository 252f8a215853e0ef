package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lugondev/go-vaultswap/pkg/types"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Local ledger commands",
	Long:  `Commands for funding wallets and inspecting the local ledger.`,
}

var ledgerAirdropCmd = &cobra.Command{
	Use:   "airdrop [address|keypair]",
	Short: "Fund a wallet from the faucet",
	Long: `Credit lamports from the ledger faucet. Without an argument the
configured keypair is funded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := cfg.Wallet.Keypair
		if len(args) == 1 {
			target = args[0]
		}
		recipient, err := resolveKey(target)
		if err != nil {
			return err
		}
		lamports, _ := cmd.Flags().GetUint64("lamports")
		if lamports == 0 {
			lamports = cfg.Ledger.AirdropLamports
		}

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			res, err := rt.client.Airdrop(cmd.Context(), recipient, lamports)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res, false)
			fmt.Fprintf(cmd.OutOrStdout(), "Balance:   %s SOL\n", types.FormatLamports(rt.client.Lamports(recipient)))
			return nil
		})
	},
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ledger slot and record count",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Program:   %s\n", rt.programID)
			fmt.Fprintf(out, "Slot:      %d\n", rt.ledger.Slot())
			fmt.Fprintf(out, "Blockhash: %s\n", rt.ledger.LatestBlockhash())
			fmt.Fprintf(out, "Records:   %d\n", len(rt.ledger.Keys()))
			fmt.Fprintf(out, "Faucet:    %s\n", rt.ledger.Faucet().PublicKey())
			if rt.journal != nil {
				fmt.Fprintf(out, "Journal:   %s\n", cfg.Database.Type)
			} else {
				fmt.Fprintf(out, "Journal:   disabled\n")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerAirdropCmd)
	ledgerCmd.AddCommand(ledgerStatusCmd)
	ledgerCmd.AddCommand(ledgerGenesisCmd)

	ledgerAirdropCmd.Flags().Uint64("lamports", 0, "lamports to credit (default is ledger.airdrop_lamports)")
}
