package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lugondev/go-vaultswap/internal/client"
	"github.com/lugondev/go-vaultswap/internal/custody"
	"github.com/lugondev/go-vaultswap/internal/ledger"
)

// cli runs the root command against a jsonl journal in dir, signing with
// keypair.
type cli struct {
	t       *testing.T
	config  string
	journal string
	keypair string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	config := filepath.Join(dir, "vaultswap.yaml")
	require.NoError(t, os.WriteFile(config, []byte("log:\n  level: error\n"), 0o600))
	return &cli{
		t:       t,
		config:  config,
		journal: filepath.Join(dir, "journal.jsonl"),
		keypair: filepath.Join(dir, "id.json"),
	}
}

func (c *cli) run(args ...string) (string, error) {
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(append([]string{
		"--config", c.config,
		"--db-type", "jsonl",
		"--db-path", c.journal,
		"--keypair", c.keypair,
	}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestWalletTransferAndMintClose(t *testing.T) {
	c := newCLI(t)
	c.mustRun("wallet", "new")
	c.mustRun("ledger", "airdrop", "--lamports", "3000000000")
	to := client.NewWallet().PublicKey()

	_, err := c.run("wallet", "transfer", to.String())
	assert.ErrorContains(t, err, "either an amount or --all")

	out := c.mustRun("wallet", "transfer", to.String(), "1000000000")
	assert.Contains(t, out, "Sent:      1000000000 (1 SOL)")

	mintPath := filepath.Join(t.TempDir(), "mint.json")
	c.mustRun("mint", "create", "--mint-keypair", mintPath)
	c.mustRun("mint", "to", mintPath, c.keypair, "0")

	out = c.mustRun("mint", "close", mintPath, to.String())
	assert.Contains(t, out, "Reclaimed: ")

	_, err = c.run("mint", "close", mintPath, to.String())
	assert.Error(t, err)

	out = c.mustRun("wallet", "transfer", to.String(), "--all")
	assert.Contains(t, out, "To:        "+to.String())

	rt, err := openRuntime(context.Background())
	require.NoError(t, err)
	defer rt.Close()

	owner, err := client.WalletFromFile(c.keypair)
	require.NoError(t, err)
	assert.Zero(t, rt.client.Lamports(owner.PublicKey()))
	assert.Equal(t, 3_000_000_000-ledger.RentExemptMinimum(custody.MintSize), rt.client.Lamports(to))
}
