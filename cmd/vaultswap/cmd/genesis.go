package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lugondev/go-vaultswap/internal/client"
)

// Genesis describes the wallets and assets a fresh ledger starts with.
//
//	wallets:
//	  - keypair: .vaultswap/id.json
//	    lamports: 5000000000
//	mints:
//	  - name: usdc
//	    keypair: .vaultswap/usdc.json
//	    decimals: 6
//	    authority: .vaultswap/id.json
//	    balances:
//	      - owner: .vaultswap/id.json
//	        amount: 1000000000
type Genesis struct {
	Wallets []GenesisWallet `yaml:"wallets"`
	Mints   []GenesisMint   `yaml:"mints"`
}

// GenesisWallet is a keypair file, generated when missing, funded from the faucet.
type GenesisWallet struct {
	Keypair  string `yaml:"keypair"`
	Lamports uint64 `yaml:"lamports"`
}

// GenesisMint is an asset type and its initial holders. Keypair pins the mint
// address; without it a random address is used.
type GenesisMint struct {
	Name      string           `yaml:"name"`
	Keypair   string           `yaml:"keypair,omitempty"`
	Decimals  uint8            `yaml:"decimals"`
	Authority string           `yaml:"authority"`
	Balances  []GenesisBalance `yaml:"balances"`
}

// GenesisBalance credits Amount to Owner, an address or a keypair file.
type GenesisBalance struct {
	Owner  string `yaml:"owner"`
	Amount uint64 `yaml:"amount"`
}

// LoadGenesis reads a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file %s: %w", path, err)
	}
	for i, m := range g.Mints {
		if m.Authority == "" {
			return nil, fmt.Errorf("genesis mint %d (%s) has no authority", i, m.Name)
		}
	}
	return &g, nil
}

// Apply funds the wallets and creates the mints, returning the mint
// addresses in file order.
func (g *Genesis) Apply(ctx context.Context, c *client.Client) ([]solana.PublicKey, error) {
	for _, gw := range g.Wallets {
		w, created, err := client.LoadOrCreateWallet(gw.Keypair)
		if err != nil {
			return nil, err
		}
		if created {
			c.GetLogger().Info("genesis wallet created", "keypair", gw.Keypair, "address", w.PublicKey())
		}
		if gw.Lamports == 0 {
			continue
		}
		if _, err := c.Airdrop(ctx, w.PublicKey(), gw.Lamports); err != nil {
			return nil, fmt.Errorf("airdrop to %s: %w", gw.Keypair, err)
		}
	}

	mints := make([]solana.PublicKey, 0, len(g.Mints))
	for _, gm := range g.Mints {
		authority, err := client.WalletFromFile(gm.Authority)
		if err != nil {
			return nil, err
		}

		var mint solana.PublicKey
		if gm.Keypair != "" {
			mintKey, _, err := client.LoadOrCreateWallet(gm.Keypair)
			if err != nil {
				return nil, err
			}
			mint, err = c.CreateMintWith(ctx, authority, mintKey, gm.Decimals)
			if err != nil {
				return nil, fmt.Errorf("create mint %s: %w", gm.Name, err)
			}
		} else if mint, err = c.CreateMint(ctx, authority, gm.Decimals); err != nil {
			return nil, fmt.Errorf("create mint %s: %w", gm.Name, err)
		}

		for _, b := range gm.Balances {
			owner, err := resolveKey(b.Owner)
			if err != nil {
				return nil, err
			}
			if _, err := c.MintTo(ctx, authority, mint, owner, b.Amount); err != nil {
				return nil, fmt.Errorf("mint %s to %s: %w", gm.Name, owner, err)
			}
		}
		mints = append(mints, mint)
	}
	return mints, nil
}

var ledgerGenesisCmd = &cobra.Command{
	Use:   "genesis [file]",
	Short: "Apply a genesis file",
	Long: `Fund wallets and create mints described by a YAML genesis file.
The file defaults to ledger.genesis_file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Ledger.GenesisFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no genesis file given and ledger.genesis_file is not set")
		}
		g, err := LoadGenesis(path)
		if err != nil {
			return err
		}

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			mints, err := g.Apply(cmd.Context(), rt.client)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Funded %d wallets at slot %d\n", len(g.Wallets), rt.ledger.Slot())
			for i, mint := range mints {
				fmt.Fprintf(out, "  mint %-12s %s\n", g.Mints[i].Name, mint)
			}
			return nil
		})
	},
}
