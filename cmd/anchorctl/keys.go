package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"lukechampine.com/blake3"

	"anchorledger/cmd/internal/passphrase"
	"anchorledger/crypto"
)

type keyView struct {
	Address  string `json:"address"`
	Bech32   string `json:"bech32"`
	Keystore string `json:"keystore,omitempty"`
}

func (a *app) keyView(addr crypto.Address, path string) (keyView, error) {
	b32, err := addr.Bech32(a.profile.Bech32Prefix)
	if err != nil {
		return keyView{}, fmt.Errorf("encode bech32: %w", err)
	}
	return keyView{Address: addr.Hex(), Bech32: b32, Keystore: path}, nil
}

func runKeygen(a *app, _ context.Context, fs *flag.FlagSet, args []string) error {
	out := fs.String("keystore", "", "Output path for the keystore file (default: profile Keystore)")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	path := firstNonEmpty(*out, a.profile.Keystore)
	if path == "" {
		return errors.New("keystore path required")
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%w: %s (use -force to overwrite)", crypto.ErrKeystoreExists, path)
	}
	pass, err := passphrase.NewSource(a.profile.PassphraseEnv, "signer").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(path, key, pass, *force); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	view, err := a.keyView(key.Address(), path)
	if err != nil {
		return err
	}
	return a.printJSON(view)
}

func runAddress(a *app, _ context.Context, fs *flag.FlagSet, args []string) error {
	path := fs.String("keystore", "", "Keystore file (default: profile Keystore)")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	keystorePath := firstNonEmpty(*path, a.profile.Keystore)
	if keystorePath == "" {
		return errors.New("keystore path required")
	}
	addr, err := crypto.KeystoreAddress(keystorePath)
	if err != nil {
		return err
	}
	view, err := a.keyView(addr, keystorePath)
	if err != nil {
		return err
	}
	return a.printJSON(view)
}

func (a *app) loadKey(override string) (*crypto.PrivateKey, string, error) {
	path := firstNonEmpty(override, a.profile.Keystore)
	if path == "" {
		return nil, "", errors.New("keystore path required")
	}
	pass, err := passphrase.NewSource(a.profile.PassphraseEnv, "signer").Get()
	if err != nil {
		return nil, "", err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, "", fmt.Errorf("open keystore %s: %w", path, err)
	}
	return key, path, nil
}

func runHash(a *app, _ context.Context, fs *flag.FlagSet, args []string) error {
	algo := fs.String("algo", "keccak", "Digest algorithm: keccak or blake3")
	file := fs.String("file", "", "Read the document from this file ('-' for stdin)")
	data := fs.String("data", "", "Hash this literal string instead of a file")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	doc, err := readDocument(*file, *data)
	if err != nil {
		return err
	}
	digest, err := hashDocument(*algo, doc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, digest.Hex())
	return err
}

func readDocument(file, data string) ([]byte, error) {
	switch {
	case file != "" && data != "":
		return nil, errors.New("use either -file or -data")
	case file == "-":
		return io.ReadAll(os.Stdin)
	case file != "":
		return os.ReadFile(file)
	case data != "":
		return []byte(data), nil
	default:
		return nil, errors.New("-file or -data required")
	}
}

// hashDocument commits to doc. Only the digest ever reaches the ledger.
func hashDocument(algo string, doc []byte) (common.Hash, error) {
	switch strings.ToLower(strings.TrimSpace(algo)) {
	case "", "keccak", "keccak256":
		return ethcrypto.Keccak256Hash(doc), nil
	case "blake3":
		return common.Hash(blake3.Sum256(doc)), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
