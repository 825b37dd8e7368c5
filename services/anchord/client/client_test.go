package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"anchorledger/core/anchor"
	"anchorledger/services/anchord/server"
	"anchorledger/storage"
)

var (
	secret = []byte("client-secret")
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func newServer(t *testing.T, now time.Time) *httptest.Server {
	t.Helper()
	ledger, err := anchor.NewService(storage.NewMemDB(), anchor.Config{
		Domain: anchor.NewDomain(1, common.HexToAddress("0x1234")),
		Owner:  owner,
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	srv, err := server.New(server.Config{}, ledger, nil, nil, server.NewAuthenticator(server.AuthConfig{HMACSecret: secret}, nil), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestSignAnchorRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := newServer(t, now)
	c, err := New(ts.URL+"/", WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	ctx := context.Background()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	user := ethcrypto.PubkeyToAddress(key.PublicKey)
	dataHash := ethcrypto.Keccak256Hash([]byte("portfolio v1"))

	req, err := c.SignAnchor(ctx, key, anchor.ActionAddAsset, dataHash, uint64(now.Unix())+300)
	require.NoError(t, err)
	created, err := c.Anchor(ctx, req)
	require.NoError(t, err)
	require.Equal(t, anchor.RecordID(user, dataHash), created.ID)

	verified, err := c.Verify(ctx, user, dataHash)
	require.NoError(t, err)
	require.True(t, verified.Exists)
	require.NotNil(t, verified.Record)
	require.Equal(t, uint64(now.Unix()), verified.Record.Timestamp)

	history, err := c.History(ctx, user, 0, 10)
	require.NoError(t, err)
	require.Len(t, history.Anchors, 1)

	status, err := c.UserStatus(ctx, user)
	require.NoError(t, err)
	require.Equal(t, int64(1), status.Nonce.ToInt().Int64())

	// Replaying the same signature fails on the consumed nonce.
	_, err = c.Anchor(ctx, req)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.ErrorIs(t, err, anchor.ErrInvalidSignature)
}

func TestAdminCallsNeedToken(t *testing.T) {
	ts := newServer(t, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	anon, err := New(ts.URL, WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	_, err = anon.Pause(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "admin token")

	token, err := server.IssueAdminToken(secret, owner, "", "", time.Minute)
	require.NoError(t, err)
	admin, err := New(ts.URL, WithHTTPClient(ts.Client()), WithToken(token))
	require.NoError(t, err)

	status, err := admin.Pause(ctx)
	require.NoError(t, err)
	require.True(t, status.Paused)

	_, err = admin.Pause(ctx)
	require.ErrorIs(t, err, anchor.ErrEnforcedPause)

	status, err = anon.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Paused)

	status, err = admin.Unpause(ctx)
	require.NoError(t, err)
	require.False(t, status.Paused)

	_, err = admin.Unpause(ctx)
	require.True(t, errors.Is(err, anchor.ErrExpectedPause))
}

func TestEventsDisabledSurfacesNotFound(t *testing.T) {
	ts := newServer(t, time.Unix(1_700_000_000, 0))
	c, err := New(ts.URL, WithHTTPClient(ts.Client()))
	require.NoError(t, err)
	_, err = c.Events(context.Background(), EventsQuery{Limit: 5})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "NotFound", apiErr.Code)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}
