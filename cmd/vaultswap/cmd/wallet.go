package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lugondev/go-vaultswap/internal/client"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/pkg/types"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Wallet management commands",
	Long:  `Commands for managing signer keypairs and checking their balances.`,
}

var walletNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new wallet",
	Long: `Generate a new keypair and save it in the solana-keygen JSON format.
The file defaults to the configured wallet.keypair.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := client.NewWallet()
		return saveWallet(cmd, w, "New wallet generated!")
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import <base58-secret-key>",
	Short: "Import a wallet from its secret key",
	Long:  `Save a base58 encoded 64-byte secret key as a solana-keygen keypair file.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := client.WalletFromBase58(args[0])
		if err != nil {
			return err
		}
		return saveWallet(cmd, w, "Wallet imported!")
	},
}

// saveWallet writes w to --out, or to wallet.keypair, refusing to replace an
// existing file unless --force is set.
func saveWallet(cmd *cobra.Command, w *client.Wallet, headline string) error {
	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		path = cfg.Wallet.Keypair
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("keypair %s already exists (use --force to overwrite)", path)
	}
	if err := w.SaveToFile(path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headline)
	fmt.Fprintf(out, "  Public Key: %s\n", w.PublicKey())
	fmt.Fprintf(out, "  Keypair:    %s\n", path)
	return nil
}

var walletShowCmd = &cobra.Command{
	Use:   "show [address|keypair]",
	Short: "Show a wallet's balances",
	Long: `Show the lamport balance of a wallet, and its balance of each given mint.
Without an argument the configured keypair is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := cfg.Wallet.Keypair
		if len(args) == 1 {
			target = args[0]
		}
		owner, err := resolveKey(target)
		if err != nil {
			return err
		}
		mints, _ := cmd.Flags().GetStringSlice("mint")

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Address:  %s\n", owner)
			lamports := rt.client.Lamports(owner)
			fmt.Fprintf(out, "Lamports: %d (%s SOL)\n", lamports, types.FormatLamports(lamports))
			for _, m := range mints {
				mint, err := resolveKey(m)
				if err != nil {
					return err
				}
				amount, err := rt.client.TokenBalance(owner, mint)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s: %d\n", mint, amount)
			}
			return nil
		})
	},
}

var walletTransferCmd = &cobra.Command{
	Use:   "transfer <to> [lamports]",
	Short: "Send lamports to another address",
	Long: `Send lamports from the configured keypair to another address. With --all the
whole balance is sent and the wallet is left empty.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := signer()
		if err != nil {
			return err
		}
		to, err := resolveKey(args[0])
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 2) {
			return fmt.Errorf("give either an amount or --all")
		}
		var lamports uint64
		if !all {
			if lamports, err = parseAmount(args[1]); err != nil {
				return err
			}
		}

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			var res *ledger.Result
			if all {
				lamports, res, err = rt.client.Drain(cmd.Context(), from, to)
			} else {
				res, err = rt.client.Transfer(cmd.Context(), from, to, lamports)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sent:      %d (%s SOL)\n", lamports, types.FormatLamports(lamports))
			fmt.Fprintf(out, "To:        %s\n", to)
			fmt.Fprintf(out, "Signature: %s\n", res.Signature)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletNewCmd)
	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletShowCmd)
	walletCmd.AddCommand(walletTransferCmd)

	for _, c := range []*cobra.Command{walletNewCmd, walletImportCmd} {
		c.Flags().String("out", "", "keypair file to write (default is wallet.keypair)")
		c.Flags().Bool("force", false, "overwrite an existing keypair file")
	}
	walletShowCmd.Flags().StringSlice("mint", nil, "mints to report balances for")
	walletTransferCmd.Flags().Bool("all", false, "send the entire balance")
}
