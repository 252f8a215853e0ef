package client

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
)

// Wallet is a keypair that signs ledger transactions.
type Wallet struct {
	key solana.PrivateKey
}

func NewWallet() *Wallet {
	return &Wallet{key: solana.NewWallet().PrivateKey}
}

// WalletFromBase58 parses a base58 encoded 64-byte secret key.
func WalletFromBase58(secret string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("invalid private key: %d bytes, want 64", len(key))
	}
	if err := checkKeypair(key); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Wallet{key: key}, nil
}

// checkKeypair verifies that the public half of a 64-byte secret key is the
// one its seed derives.
func checkKeypair(secret []byte) error {
	derived := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	if !bytes.Equal(derived, secret) {
		return errors.New("public key does not match the secret seed")
	}
	return nil
}

// WalletFromFile loads a keypair file holding the 64 secret key bytes as a
// JSON array (solana-keygen) or as {"secretKey": [...]}.
func WalletFromFile(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}

	var secret []byte
	var numbers []uint16
	var wrapped struct {
		SecretKey []uint16 `json:"secretKey"`
	}
	switch {
	case json.Unmarshal(data, &numbers) == nil:
	case json.Unmarshal(data, &wrapped) == nil && wrapped.SecretKey != nil:
		numbers = wrapped.SecretKey
	default:
		return nil, fmt.Errorf("keypair %s: expected a byte array or a secretKey field", path)
	}
	for _, n := range numbers {
		if n > 255 {
			return nil, fmt.Errorf("keypair %s: value %d is not a byte", path, n)
		}
		secret = append(secret, byte(n))
	}
	if len(secret) != 64 {
		return nil, fmt.Errorf("keypair %s: secret key is %d bytes, want 64", path, len(secret))
	}
	if err := checkKeypair(secret); err != nil {
		return nil, fmt.Errorf("keypair %s: %w", path, err)
	}
	return &Wallet{key: solana.PrivateKey(secret)}, nil
}

// LoadOrCreateWallet loads the keypair at path, or generates and saves one
// when the file does not exist. created reports which happened.
func LoadOrCreateWallet(path string) (w *Wallet, created bool, err error) {
	w, err = WalletFromFile(path)
	if err == nil {
		return w, false, nil
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, fs.ErrNotExist) {
		return nil, false, err
	}

	w = NewWallet()
	if err := w.SaveToFile(path); err != nil {
		return nil, false, err
	}
	return w, true, nil
}

func (w *Wallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *Wallet) PrivateKey() solana.PrivateKey { return w.key }

func (w *Wallet) String() string { return w.PublicKey().String() }

// SaveToFile writes the keypair in the solana-keygen format, readable only
// by the current user.
func (w *Wallet) SaveToFile(path string) error {
	// A []byte would marshal as base64; keygen files hold a number array.
	numbers := make([]uint16, len(w.key))
	for i, b := range w.key {
		numbers[i] = uint16(b)
	}
	data, err := json.Marshal(numbers)
	if err != nil {
		return fmt.Errorf("failed to marshal keypair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create keypair directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write keypair %s: %w", path, err)
	}
	return nil
}
