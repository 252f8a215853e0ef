package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lugondev/go-vaultswap/internal/client"
	"github.com/lugondev/go-vaultswap/internal/custody"
)

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Asset type commands",
	Long:  `Commands for creating mints and crediting balances. The configured keypair is the mint authority.`,
}

var mintCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new mint",
	RunE: func(cmd *cobra.Command, args []string) error {
		payer, err := signer()
		if err != nil {
			return err
		}
		decimals, _ := cmd.Flags().GetUint8("decimals")
		keypair, _ := cmd.Flags().GetString("mint-keypair")

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			mint := client.NewWallet()
			if keypair != "" {
				if mint, _, err = client.LoadOrCreateWallet(keypair); err != nil {
					return err
				}
			}
			address, err := rt.client.CreateMintWith(cmd.Context(), payer, mint, decimals)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mint:      %s\n", address)
			fmt.Fprintf(cmd.OutOrStdout(), "Decimals:  %d\n", decimals)
			fmt.Fprintf(cmd.OutOrStdout(), "Authority: %s\n", payer.PublicKey())
			return nil
		})
	},
}

var mintToCmd = &cobra.Command{
	Use:   "to <mint> <owner> <amount>",
	Short: "Credit an owner's balance record",
	Long:  `Mint amount base units to the owner's associated balance record, creating it if needed.`,
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		authority, err := signer()
		if err != nil {
			return err
		}
		mint, err := resolveKey(args[0])
		if err != nil {
			return err
		}
		owner, err := resolveKey(args[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			record, err := rt.client.MintTo(cmd.Context(), authority, mint, owner, amount)
			if err != nil {
				return err
			}
			balance, err := rt.client.Balance(record)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Record:  %s\n", record)
			fmt.Fprintf(cmd.OutOrStdout(), "Balance: %d\n", balance)
			return nil
		})
	},
}

var mintBalanceCmd = &cobra.Command{
	Use:   "balance <mint> [owner]",
	Short: "Show an owner's balance of a mint",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mint, err := resolveKey(args[0])
		if err != nil {
			return err
		}
		target := cfg.Wallet.Keypair
		if len(args) == 2 {
			target = args[1]
		}
		owner, err := resolveKey(target)
		if err != nil {
			return err
		}

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			amount, err := rt.client.TokenBalance(owner, mint)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), amount)
			return nil
		})
	},
}

var mintCloseCmd = &cobra.Command{
	Use:   "close <mint> [destination]",
	Short: "Close an empty balance record",
	Long: `Close the configured keypair's associated balance record of a mint. The
record must hold no tokens; its rent lamports go to destination, which
defaults to the keypair itself.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := signer()
		if err != nil {
			return err
		}
		mint, err := resolveKey(args[0])
		if err != nil {
			return err
		}
		destination := owner.PublicKey()
		if len(args) == 2 {
			if destination, err = resolveKey(args[1]); err != nil {
				return err
			}
		}
		record, err := custody.AssociatedAddress(owner.PublicKey(), mint)
		if err != nil {
			return err
		}

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			before := rt.client.Lamports(destination)
			if _, err := rt.client.CloseBalanceRecord(cmd.Context(), owner, record, destination); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed:    %s\n", record)
			fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed: %d\n", rt.client.Lamports(destination)-before)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(mintCmd)
	mintCmd.AddCommand(mintCreateCmd)
	mintCmd.AddCommand(mintToCmd)
	mintCmd.AddCommand(mintBalanceCmd)
	mintCmd.AddCommand(mintCloseCmd)

	mintCreateCmd.Flags().Uint8("decimals", 6, "number of decimal places")
	mintCreateCmd.Flags().String("mint-keypair", "", "keypair file pinning the mint address (generated if missing)")
}
