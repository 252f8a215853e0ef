package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/lugondev/go-vaultswap/internal/client"
	"github.com/lugondev/go-vaultswap/internal/common"
	"github.com/lugondev/go-vaultswap/internal/custody"
	verrors "github.com/lugondev/go-vaultswap/internal/errors"
	"github.com/lugondev/go-vaultswap/internal/ledger"
	"github.com/lugondev/go-vaultswap/internal/metrics"
	"github.com/lugondev/go-vaultswap/internal/pool"
	"github.com/lugondev/go-vaultswap/internal/processor"
	"github.com/lugondev/go-vaultswap/internal/storage"
	txlog "github.com/lugondev/go-vaultswap/pkg/log"

	// Journal backends register themselves with storage.
	_ "github.com/lugondev/go-vaultswap/internal/storage/jsonl"
	_ "github.com/lugondev/go-vaultswap/internal/storage/mongo"
	_ "github.com/lugondev/go-vaultswap/internal/storage/postgres"
)

// runtime is the ledger a command runs against, rebuilt from the journal on
// every invocation.
type runtime struct {
	programID solana.PublicKey
	ledger    *ledger.Ledger
	client    *client.Client
	journal   *storage.Journal
	conn      *storage.ConnectionManager
	metrics   *metrics.Collection
}

func openRuntime(ctx context.Context) (*runtime, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.Ledger.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger.program_id: %w", err)
	}

	rt := &runtime{
		programID: programID,
		metrics:   metrics.NewCollection(metrics.NewLogMetrics(logger)),
	}
	if prom := cfg.Metrics.Prometheus; prom.Enabled {
		rt.metrics.Add(metrics.NewPrometheusMetrics(prom.Namespace, prom.Textfile))
	}
	aborted := processor.ProcessorFunc[*ledger.Result](func(ctx context.Context, res *ledger.Result, m *metrics.Collection) error {
		logger.Warn("transaction aborted", "signature", res.Signature, "code", res.ErrorCode(), "error", res.Err)
		return nil
	})
	hooks := processor.NewChain[*ledger.Result](
		pool.NewMetricsProcessor(programID),
		processor.When(func(res *ledger.Result) bool { return !res.Success() }, aborted),
	)

	if cfg.Database.Enabled {
		conn, err := storage.NewConnectionManager(&cfg.Database)
		if err != nil {
			return nil, err
		}
		repo, err := conn.Connect(ctx)
		if err != nil {
			return nil, err
		}
		rt.conn = conn
		rt.journal = storage.NewJournal(repo, programID).WithLogger(logger)
		hooks.Add(rt.journal)
	}

	rt.ledger = ledger.New(
		ledger.WithMetrics(rt.metrics),
		ledger.WithMaxCallDepth(cfg.Ledger.MaxCallDepth),
		ledger.WithProcessor(hooks),
	).WithLogger(logger)
	rt.ledger.Register(custody.New())
	rt.ledger.Register(custody.NewAssociated())
	rt.ledger.Register(pool.New(programID))

	if rt.journal != nil {
		n, err := rt.journal.Restore(ctx, rt.ledger)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to restore ledger: %w", err)
		}
		logger.Debug("ledger restored", "backend", cfg.Database.Type, "records", n, "slot", rt.ledger.Slot())
	}

	rt.client = client.New(rt.ledger, programID).WithLogger(logger)
	return rt, nil
}

func (rt *runtime) Close() error {
	ctx := context.Background()
	if common.ParseLevel(cfg.Log.Level) <= slog.LevelDebug {
		_ = rt.metrics.Flush(ctx)
	}
	if err := rt.metrics.Shutdown(ctx); err != nil {
		logger.Warn("metrics shutdown failed", "error", err)
	}
	if rt.conn != nil {
		return rt.conn.Close()
	}
	return nil
}

// withRuntime opens the runtime, runs fn and closes it again.
func withRuntime(ctx context.Context, fn func(rt *runtime) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// signer loads the configured keypair.
func signer() (*client.Wallet, error) {
	w, err := client.WalletFromFile(cfg.Wallet.Keypair)
	if err != nil {
		return nil, fmt.Errorf("%w (create one with `vaultswap wallet new`)", err)
	}
	return w, nil
}

// resolveKey accepts either a base58 address or a keypair file.
func resolveKey(s string) (solana.PublicKey, error) {
	if key, err := solana.PublicKeyFromBase58(s); err == nil {
		return key, nil
	}
	if _, err := os.Stat(s); err == nil {
		w, err := client.WalletFromFile(s)
		if err != nil {
			return solana.PublicKey{}, err
		}
		return w.PublicKey(), nil
	}
	return solana.PublicKey{}, fmt.Errorf("%q is neither an address nor a keypair file", s)
}

func parseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, verrors.ErrInvalidAmount.WithCause(err).WithDetails(map[string]any{"amount": s})
	}
	return amount, nil
}

func printResult(w io.Writer, res *ledger.Result, verbose bool) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Signature: %s\n", res.Signature)
	fmt.Fprintf(w, "Slot:      %d\n", res.Slot)
	if res.Success() {
		fmt.Fprintf(w, "Status:    committed\n")
	} else {
		fmt.Fprintf(w, "Status:    aborted (%s)\n", res.ErrorCode())
	}
	if verbose {
		printFrames(w, txlog.Trace(res.Logs))
	}
}

func printFrames(w io.Writer, frames []*txlog.Frame) {
	for _, f := range frames {
		indent := strings.Repeat("  ", f.Depth)
		status := "ok"
		if f.Failed {
			status = "failed: " + f.Error
		}
		fmt.Fprintf(w, "%s%s [%s]\n", indent, f.ProgramID, status)
		for _, msg := range f.Logs {
			fmt.Fprintf(w, "%s  | %s\n", indent, msg)
		}
		for _, data := range f.Data {
			fmt.Fprintf(w, "%s  | data %d bytes\n", indent, len(data))
		}
		printFrames(w, f.Children)
	}
}
