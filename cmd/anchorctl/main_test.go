package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

	"anchorledger/core/anchor"
	"anchorledger/core/events"
	"anchorledger/services/anchord/api"
	"anchorledger/services/anchord/client"
	"anchorledger/services/anchord/journal"
	"anchorledger/services/anchord/server"
	"anchorledger/storage"
)

const testSecret = "anchorctl-test-secret"

var testOwner = common.HexToAddress("0x00000000000000000000000000000000000000ee")

type harness struct {
	t       *testing.T
	dir     string
	server  *httptest.Server
	dsn     string
	profile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "journal.db")
	j, err := journal.Open("sqlite", dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ledger, err := anchor.NewService(storage.NewMemDB(), anchor.Config{
		Domain:  anchor.NewDomain(31337, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")),
		Owner:   testOwner,
		Emitter: events.Multi{j},
	})
	require.NoError(t, err)
	auth := server.NewAuthenticator(server.AuthConfig{HMACSecret: []byte(testSecret), Issuer: "anchorctl"}, nil)
	srv, err := server.New(server.Config{}, ledger, nil, j, auth, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	h := &harness{t: t, dir: dir, server: ts, dsn: dsn}
	h.profile = filepath.Join(dir, "anchorctl.toml")
	body := fmt.Sprintf("Server = %q\nKeystore = %q\nPassphraseEnv = \"TEST_ANCHORCTL_PASS\"\nAdminSecretEnv = \"TEST_ANCHORD_SECRET\"\nAdminIssuer = \"anchorctl\"\nJournalDSN = %q\n",
		ts.URL, filepath.Join(dir, "signer.json"), dsn)
	require.NoError(t, os.WriteFile(h.profile, []byte(body), 0o600))
	t.Setenv("TEST_ANCHORCTL_PASS", "correct horse battery staple")
	return h
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "-profile", h.profile}, args[1:]...)
	err := run(context.Background(), full, &stdout, &stderr, client.WithHTTPClient(h.server.Client()))
	return stdout.String(), err
}

func TestHashCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"hash", "-data", "portfolio"}, &out, &bytes.Buffer{}))
	require.Equal(t, ethcrypto.Keccak256Hash([]byte("portfolio")).Hex(), strings.TrimSpace(out.String()))

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"hash", "-algo", "blake3", "-data", "portfolio"}, &out, &bytes.Buffer{}))
	require.Equal(t, common.Hash(blake3.Sum256([]byte("portfolio"))).Hex(), strings.TrimSpace(out.String()))

	err := run(context.Background(), []string{"hash", "-algo", "md5", "-data", "x"}, &out, &bytes.Buffer{})
	require.ErrorContains(t, err, "unsupported hash algorithm")
}

func TestUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), []string{"frobnicate"}, &bytes.Buffer{}, &stderr)
	require.ErrorContains(t, err, "unknown command")
	require.Contains(t, stderr.String(), "anchor ")
}

func TestExplicitProfileMustExist(t *testing.T) {
	err := run(context.Background(), []string{"domain", "-profile", filepath.Join(t.TempDir(), "missing.toml")}, &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, "read profile")
}

func TestKeygenAnchorVerifyExport(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("keygen")
	require.NoError(t, err)
	var created keyView
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.True(t, strings.HasPrefix(created.Bech32, "anchor1"))

	_, err = h.run("keygen")
	require.ErrorContains(t, err, "already exists")

	out, err = h.run("address")
	require.NoError(t, err)
	var loaded keyView
	require.NoError(t, json.Unmarshal([]byte(out), &loaded))
	require.Equal(t, created.Address, loaded.Address)

	doc := filepath.Join(h.dir, "portfolio.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{"ETH":"1.5"}`), 0o600))
	out, err = h.run("anchor", "-action", "ADD_ASSET", "-file", doc)
	require.NoError(t, err)
	var anchored api.AnchorResponse
	require.NoError(t, json.Unmarshal([]byte(out), &anchored))
	dataHash := ethcrypto.Keccak256Hash([]byte(`{"ETH":"1.5"}`))
	require.Equal(t, dataHash, anchored.Record.DataHash)

	out, err = h.run("verify", "-user", created.Bech32, "-hash", dataHash.Hex())
	require.NoError(t, err)
	var verified api.VerifyResponse
	require.NoError(t, json.Unmarshal([]byte(out), &verified))
	require.True(t, verified.Exists)

	out, err = h.run("status", "-user", created.Address)
	require.NoError(t, err)
	var status api.UserStatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Equal(t, uint64(1), status.AnchorCount)

	out, err = h.run("events", "-user", created.Address)
	require.NoError(t, err)
	var journaled api.EventsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &journaled))
	require.Len(t, journaled.Events, 1)

	dest := filepath.Join(h.dir, "anchors.parquet")
	out, err = h.run("export", "-out", dest)
	require.NoError(t, err)
	var exported exportResult
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	require.Equal(t, 1, exported.Entries)
	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestPauseRequiresSecretAndOwner(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("pause", "-as", testOwner.Hex())
	require.ErrorContains(t, err, "TEST_ANCHORD_SECRET")

	t.Setenv("TEST_ANCHORD_SECRET", testSecret)
	_, err = h.run("pause", "-as", "0x0000000000000000000000000000000000000001")
	require.ErrorIs(t, err, anchor.ErrUnauthorized)

	out, err := h.run("pause", "-as", testOwner.Hex())
	require.NoError(t, err)
	var status api.StatusResponse
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.True(t, status.Paused)

	out, err = h.run("status")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.True(t, status.Paused)

	_, err = h.run("unpause", "-as", testOwner.Hex())
	require.NoError(t, err)
}
