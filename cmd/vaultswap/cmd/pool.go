package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lugondev/go-vaultswap/internal/authority"
	"github.com/lugondev/go-vaultswap/internal/client"
	"github.com/lugondev/go-vaultswap/internal/config"
	"github.com/lugondev/go-vaultswap/internal/pool"
)

var initializeCmd = &cobra.Command{
	Use:   "initialize",
	Short: "Initialize a swap pool",
	Long: `Create the pool state record and its vaults for a mint pair, optionally
seeding the vaults from the configured keypair's balance records.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payer, err := signer()
		if err != nil {
			return err
		}
		params, err := poolParams()
		if err != nil {
			return err
		}
		params.DepositA, _ = cmd.Flags().GetUint64("deposit-a")
		params.DepositB, _ = cmd.Flags().GetUint64("deposit-b")

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			info, err := rt.client.InitializePool(cmd.Context(), payer, params)
			if err != nil {
				return err
			}
			return printPool(cmd.OutOrStdout(), rt.client, info, "text", 0)
		})
	},
}

var buyCmd = &cobra.Command{
	Use:   "buy <amount-in-b>",
	Short: "Pay asset B and receive asset A",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwap(cmd, pool.SideBuy, args[0])
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell <amount-in-a>",
	Short: "Pay asset A and receive asset B",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwap(cmd, pool.SideSell, args[0])
	},
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Pool inspection commands",
}

var poolShowCmd = &cobra.Command{
	Use:   "show [pool]",
	Short: "Show a pool's state, vault balances and quotes",
	Long: `Show a pool. Without an argument the pool is located from the configured
pool.keying, pool.mint_a and pool.mint_b.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")
		quote, _ := cmd.Flags().GetUint64("quote")
		address := ""
		if len(args) == 1 {
			address = args[0]
		}

		return withRuntime(cmd.Context(), func(rt *runtime) error {
			info, err := findPool(rt.client, address)
			if err != nil {
				return err
			}
			return printPool(cmd.OutOrStdout(), rt.client, info, format, quote)
		})
	},
}

var poolAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Derive the addresses of the configured pool",
	Long:  `Derive the pool, authority and vault addresses with their seeds, without reading the ledger.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := poolParams()
		if err != nil {
			return err
		}
		programID, err := solana.PublicKeyFromBase58(cfg.Ledger.ProgramID)
		if err != nil {
			return fmt.Errorf("invalid ledger.program_id: %w", err)
		}
		addrs, err := pool.DeriveAddresses(programID, params.Variant, params.Keying, params.MintA, params.MintB)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printAuthority(out, "pool", addrs.Pool)
		printAuthority(out, "authority", addrs.Authority)
		if params.Variant == pool.VariantLiquiditySeeded {
			printAuthority(out, "vault_a", addrs.VaultA)
			printAuthority(out, "vault_b", addrs.VaultB)
		}
		fmt.Fprintf(out, "state discriminator: %s\n", base58.Encode(pool.PoolStateDiscriminator[:]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initializeCmd)
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(sellCmd)
	rootCmd.AddCommand(poolCmd)
	poolCmd.AddCommand(poolShowCmd)
	poolCmd.AddCommand(poolAddressCmd)

	defaults := config.DefaultConfig().Pool
	flags := initializeCmd.Flags()
	flags.String("variant", defaults.Variant, "pool variant (fixed_rate, mint_checked, liquidity_seeded)")
	flags.String("keying", defaults.Keying, "pool registry keying (singleton, keyed)")
	flags.Uint64("rate", defaults.Rate, "units of B per unit of A")
	flags.String("dust-policy", defaults.DustPolicy, "what sells below one rate unit do (reject, burn)")
	flags.String("mint-a", defaults.MintA, "asset A mint")
	flags.String("mint-b", defaults.MintB, "asset B mint")
	flags.Uint64("deposit-a", 0, "initial asset A liquidity from the payer")
	flags.Uint64("deposit-b", 0, "initial asset B liquidity from the payer")
	for key, flag := range map[string]string{
		"pool.variant":     "variant",
		"pool.keying":      "keying",
		"pool.rate":        "rate",
		"pool.dust_policy": "dust-policy",
		"pool.mint_a":      "mint-a",
		"pool.mint_b":      "mint-b",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	for _, c := range []*cobra.Command{buyCmd, sellCmd} {
		c.Flags().String("pool", "", "pool address (default is derived from the pool config)")
		c.Flags().Bool("verbose", false, "print transaction logs")
	}

	poolShowCmd.Flags().StringP("output", "o", "text", "output format (text, yaml, json)")
	poolShowCmd.Flags().Uint64("quote", 1, "amount to quote both directions for")
}

// poolParams builds pool parameters from the pool config section.
func poolParams() (client.PoolParams, error) {
	var p client.PoolParams
	var err error
	if p.Variant, err = pool.ParseVariant(cfg.Pool.Variant); err != nil {
		return p, err
	}
	if p.Keying, err = pool.ParseKeying(cfg.Pool.Keying); err != nil {
		return p, err
	}
	if p.DustPolicy, err = pool.ParseDustPolicy(cfg.Pool.DustPolicy); err != nil {
		return p, err
	}
	if cfg.Pool.MintA == "" || cfg.Pool.MintB == "" {
		return p, fmt.Errorf("pool.mint_a and pool.mint_b are required")
	}
	if p.MintA, err = resolveKey(cfg.Pool.MintA); err != nil {
		return p, err
	}
	if p.MintB, err = resolveKey(cfg.Pool.MintB); err != nil {
		return p, err
	}
	p.Rate = cfg.Pool.Rate
	return p, nil
}

// findPool loads the pool at address, or the configured pool when address is empty.
func findPool(c *client.Client, address string) (*client.PoolInfo, error) {
	if address != "" {
		key, err := resolveKey(address)
		if err != nil {
			return nil, err
		}
		return c.LoadPool(key)
	}
	params, err := poolParams()
	if err != nil {
		return nil, err
	}
	return c.FindPool(params.Keying, params.MintA, params.MintB)
}

func runSwap(cmd *cobra.Command, side pool.Side, arg string) error {
	user, err := signer()
	if err != nil {
		return err
	}
	amount, err := parseAmount(arg)
	if err != nil {
		return err
	}
	address, _ := cmd.Flags().GetString("pool")
	verbose, _ := cmd.Flags().GetBool("verbose")

	return withRuntime(cmd.Context(), func(rt *runtime) error {
		info, err := findPool(rt.client, address)
		if err != nil {
			return err
		}

		swap := rt.client.Buy
		if side == pool.SideSell {
			swap = rt.client.Sell
		}
		out, res, err := swap(cmd.Context(), user, info, amount)
		printResult(cmd.OutOrStdout(), res, verbose || err != nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: paid %d, received %d\n", side, amount, out)
		return nil
	})
}

func printAuthority(w io.Writer, name string, a authority.Authority) {
	fmt.Fprintf(w, "%-10s %s (bump %d)\n", name, a.Address, a.Bump)
	for i, seed := range a.SignerSeeds() {
		fmt.Fprintf(w, "  seed[%d] %s\n", i, base58.Encode(seed))
	}
}

// poolView is the printable form of a pool.
type poolView struct {
	Address    string      `json:"address" yaml:"address"`
	Authority  string      `json:"authority" yaml:"authority"`
	Variant    string      `json:"variant" yaml:"variant"`
	Keying     string      `json:"keying" yaml:"keying"`
	DustPolicy string      `json:"dust_policy" yaml:"dust_policy"`
	Rate       uint64      `json:"rate" yaml:"rate"`
	MintA      string      `json:"mint_a" yaml:"mint_a"`
	MintB      string      `json:"mint_b" yaml:"mint_b"`
	VaultA     string      `json:"vault_a" yaml:"vault_a"`
	VaultB     string      `json:"vault_b" yaml:"vault_b"`
	ReserveA   uint64      `json:"reserve_a" yaml:"reserve_a"`
	ReserveB   uint64      `json:"reserve_b" yaml:"reserve_b"`
	Quotes     []quoteView `json:"quotes,omitempty" yaml:"quotes,omitempty"`
}

type quoteView struct {
	Side      string `json:"side" yaml:"side"`
	AmountIn  uint64 `json:"amount_in" yaml:"amount_in"`
	AmountOut uint64 `json:"amount_out,omitempty" yaml:"amount_out,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newPoolView(c *client.Client, info *client.PoolInfo, quote uint64) (*poolView, error) {
	s := info.State
	v := &poolView{
		Address:    info.Address.String(),
		Authority:  info.Authority.String(),
		Variant:    s.Variant.String(),
		Keying:     s.Keying.String(),
		DustPolicy: s.DustPolicy.String(),
		Rate:       s.Rate,
		MintA:      s.MintA.String(),
		MintB:      s.MintB.String(),
		VaultA:     s.VaultA.String(),
		VaultB:     s.VaultB.String(),
	}
	var err error
	if v.ReserveA, err = c.Balance(s.VaultA); err != nil {
		return nil, err
	}
	if v.ReserveB, err = c.Balance(s.VaultB); err != nil {
		return nil, err
	}

	if quote > 0 {
		for _, side := range []pool.Side{pool.SideBuy, pool.SideSell} {
			q := quoteView{Side: side.String(), AmountIn: quote}
			if out, err := c.Quote(info, side, quote); err != nil {
				q.Error = err.Error()
			} else {
				q.AmountOut = out
			}
			v.Quotes = append(v.Quotes, q)
		}
	}
	return v, nil
}

func printPool(w io.Writer, c *client.Client, info *client.PoolInfo, format string, quote uint64) error {
	v, err := newPoolView(c, info, quote)
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	fmt.Fprintf(w, "Pool:        %s\n", v.Address)
	fmt.Fprintf(w, "Authority:   %s\n", v.Authority)
	fmt.Fprintf(w, "Variant:     %s (%s, dust %s)\n", v.Variant, v.Keying, v.DustPolicy)
	fmt.Fprintf(w, "Rate:        %d B per A\n", v.Rate)
	fmt.Fprintf(w, "Asset A:     %s vault %s reserve %d\n", v.MintA, v.VaultA, v.ReserveA)
	fmt.Fprintf(w, "Asset B:     %s vault %s reserve %d\n", v.MintB, v.VaultB, v.ReserveB)
	for _, q := range v.Quotes {
		if q.Error != "" {
			fmt.Fprintf(w, "Quote %-4s %d: %s\n", q.Side, q.AmountIn, q.Error)
			continue
		}
		fmt.Fprintf(w, "Quote %-4s %d: %d\n", q.Side, q.AmountIn, q.AmountOut)
	}
	return nil
}
