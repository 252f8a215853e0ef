package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lugondev/go-vaultswap/internal/common"
	"github.com/lugondev/go-vaultswap/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vaultswap",
	Short: "Vaultswap CLI - fixed-rate swap pools on a local ledger",
	Long: `Vaultswap runs a custody-backed fixed-rate swap pool on an in-process ledger.

It provides commands for:
- Wallet management
- Funding wallets and minting assets
- Initializing pools and swapping against them
- Inspecting the transaction journal`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = common.NewLogger(cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", "path", used)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./.vaultswap.yaml or $HOME/.vaultswap.yaml)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (text, json)")
	flags.String("keypair", defaults.Wallet.Keypair, "signer keypair file")
	flags.String("program-id", defaults.Ledger.ProgramID, "pool program address")
	flags.String("db-type", defaults.Database.Type, "journal backend (memory, jsonl, postgres, mongodb)")
	flags.String("db-path", defaults.Database.Path, "jsonl journal file")

	bind("log.level", "log-level")
	bind("log.format", "log-format")
	bind("wallet.keypair", "keypair")
	bind("ledger.program_id", "program-id")
	bind("database.type", "db-type")
	bind("database.path", "db-path")
}

// bind ties a persistent flag to a config key. Unset flags fall through to
// the config file and the environment.
func bind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flag: %v\n", err)
	}
}
