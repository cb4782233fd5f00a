package httpapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"github.com/alpha-labs/alpha-faucet/internal/addr"
	"github.com/alpha-labs/alpha-faucet/internal/claim"
	"github.com/alpha-labs/alpha-faucet/internal/mintclient"
	"github.com/alpha-labs/alpha-faucet/internal/sigverify"
	"github.com/alpha-labs/alpha-faucet/internal/store"
)

type stubRelayer struct{}

func (stubRelayer) Request(ctx context.Context, destinationID string, coinAmount float64) (*mintclient.Response, error) {
	return &mintclient.Response{TxID: "tx-stub", Raw: []byte(`{"txId":"tx-stub"}`)}, nil
}

func newTestServer(t *testing.T) (*Server, addr.Codec) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Create(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	codec := addr.New("alpha")
	coordinator := claim.New(st, codec, stubRelayer{}, slog.Disabled)
	return New(st, codec, coordinator, "*", slog.Disabled), codec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestBalanceEndpointNotInSnapshot(t *testing.T) {
	s, codec := newTestServer(t)
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	a, err := codec.FromPubkey(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/faucet/balance/"+a, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body balanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.InSnapshot)
}

func TestBalanceEndpointInvalidAddress(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/faucet/balance/not-an-address", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestEndpointHappyPath(t *testing.T) {
	s, codec := newTestServer(t)
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	a, err := codec.FromPubkey(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.store.BulkInsertBalances(ctx, []store.BalanceSeed{
		{Address: a, InitialAmount: 150_000_000},
	}))

	sig, err := sigverify.Sign(hex.EncodeToString(priv.Serialize()), a, "0xDEAD", 150_000_000)
	require.NoError(t, err)

	payload, err := json.Marshal(requestBody{
		L1Addr: a, UnicityID: "0xDEAD", Amount: 150_000_000, Signature: sig,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/faucet/request", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res claim.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.OK)
	require.Equal(t, "tx-stub", res.RelayTxID)

	// replay: must now be rejected with 409
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/faucet/request", bytes.NewReader(payload))
	s.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusConflict, rec2.Code)
}

func TestClaimsEndpointReturnsLogAfterRequest(t *testing.T) {
	s, codec := newTestServer(t)
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	a, err := codec.FromPubkey(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.store.BulkInsertBalances(ctx, []store.BalanceSeed{
		{Address: a, InitialAmount: 150_000_000},
	}))

	sig, err := sigverify.Sign(hex.EncodeToString(priv.Serialize()), a, "0xDEAD", 150_000_000)
	require.NoError(t, err)
	payload, err := json.Marshal(requestBody{
		L1Addr: a, UnicityID: "0xDEAD", Amount: 150_000_000, Signature: sig,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/faucet/request", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	claimsReq := httptest.NewRequest(http.MethodGet, "/api/v1/faucet/claims/"+a, nil)
	claimsRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(claimsRec, claimsReq)
	require.Equal(t, http.StatusOK, claimsRec.Code)

	var body claimsResponse
	require.NoError(t, json.Unmarshal(claimsRec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Len(t, body.Claims, 1)
	require.Equal(t, "success", body.Claims[0].Status)
	require.Equal(t, "0xDEAD", body.Claims[0].DestinationID)
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/faucet/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
}
