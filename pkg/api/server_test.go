package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uhyunpark/decefi/pkg/ledger"
	"github.com/uhyunpark/decefi/pkg/program/instruction"
)

var programID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

func testKey(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	k[31] = 0x11
	return k
}

func newTestServer(t *testing.T) (*Server, *ledger.Runtime) {
	t.Helper()
	store, err := ledger.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	rt, err := ledger.NewRuntime(store, programID, ledger.WithMetrics(ledger.NewMetrics(reg)))
	require.NoError(t, err)
	return NewServer(rt, reg, zap.NewNop()), rt
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func txRequest(orders solana.PublicKey, ix instruction.Instruction) TransactionRequest {
	return TransactionRequest{
		Accounts: []ledger.AccountMeta{{Key: orders, IsSigner: true, IsWritable: true}},
		Data:     hexutil.Bytes(instruction.Encode(ix)),
	}
}

func TestAccountEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	orders := testKey(1)

	rec := do(t, s, "POST", "/api/v1/accounts", CreateAccountRequest{Key: orders, Lamports: 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[AccountView](t, rec)
	require.Equal(t, orders.String(), view.Key)
	require.NotNil(t, view.Orders)
	require.Empty(t, view.Orders.Orders)

	rec = do(t, s, "POST", "/api/v1/accounts", CreateAccountRequest{Key: orders})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, "GET", "/api/v1/accounts/"+testKey(2).String(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, "GET", "/api/v1/accounts/not-a-key", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "GET", "/api/v1/accounts?owner="+programID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]AccountView](t, rec), 1)
}

func TestSyncTransaction(t *testing.T) {
	s, _ := newTestServer(t)
	orders := testKey(1)
	require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/v1/accounts", CreateAccountRequest{Key: orders}).Code)

	var hash [instruction.HashLen]byte
	hash[0] = 0xAB
	rec := do(t, s, "POST", "/api/v1/transactions?mode=sync", txRequest(orders, instruction.NewOrderWithHash(hash)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SubmitResponse](t, rec)
	require.Equal(t, "executed", resp.Status)
	require.True(t, resp.Receipt.OK)

	rec = do(t, s, "GET", "/api/v1/accounts/"+orders.String(), nil)
	view := decode[AccountView](t, rec)
	require.Len(t, view.Orders.Orders, 1)
	require.Equal(t, "waiting", view.Orders.Orders[0].State)
	require.Equal(t, hexutil.Encode(hash[:]), view.Orders.Orders[0].Hash)

	rec = do(t, s, "GET", "/api/v1/transactions/"+resp.Signature, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, resp.Signature, decode[ledger.Receipt](t, rec).Signature)
}

func TestQueuedTransaction(t *testing.T) {
	s, rt := newTestServer(t)
	orders := testKey(1)
	require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/v1/accounts", CreateAccountRequest{Key: orders}).Code)

	rec := do(t, s, "POST", "/api/v1/transactions", txRequest(orders, instruction.Withdraw{Amount: 9}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[SubmitResponse](t, rec)
	require.Equal(t, "queued", resp.Status)

	require.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/v1/transactions/"+resp.Signature, nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/v1/slots/latest", nil).Code)

	_, _, err := rt.ProduceSlot()
	require.NoError(t, err)

	rc := decode[ledger.Receipt](t, do(t, s, "GET", "/api/v1/transactions/"+resp.Signature, nil))
	require.False(t, rc.OK)
	require.Equal(t, "InvalidAmount", rc.Error)

	slot := decode[ledger.SlotRecord](t, do(t, s, "GET", "/api/v1/slots/latest", nil))
	require.EqualValues(t, 1, slot.Slot)
	require.True(t, strings.HasPrefix(slot.StateHash, "0x"))

	status := decode[StatusResponse](t, do(t, s, "GET", "/api/v1/status", nil))
	require.EqualValues(t, 1, status.Slot)
	require.Zero(t, status.Pending)
}

func TestTransactionRejected(t *testing.T) {
	s, _ := newTestServer(t)
	foreign := testKey(7)
	req := txRequest(testKey(1), instruction.Deposit{Amount: 1})
	req.ProgramID = &foreign

	rec := do(t, s, "POST", "/api/v1/transactions", req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "transaction rejected", decode[ErrorResponse](t, rec).Error)

	rec = do(t, s, "POST", "/api/v1/transactions", map[string]string{"bogus": "field"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	orders := testKey(1)
	do(t, s, "POST", "/api/v1/accounts", CreateAccountRequest{Key: orders})
	do(t, s, "POST", "/api/v1/transactions?mode=sync", txRequest(orders, instruction.Deposit{Amount: 2}))

	rec := do(t, s, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `decefi_ledger_instructions_total{result="ok",variant="deposit"} 1`)
}

func TestWebSocketReceipts(t *testing.T) {
	s, rt := newTestServer(t)
	rt.OnReceipt = s.BroadcastReceipt
	go s.hub.Run()
	defer s.hub.Stop()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelReceipts, "orders"}}))
	var ack WSAck
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "subscribed", ack.Type)
	require.Equal(t, []string{ChannelReceipts}, ack.Channels)
	require.Equal(t, []string{"orders"}, ack.Rejected)

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "watch"}))
	ack = WSAck{}
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "error", ack.Type)

	do(t, s, "POST", "/api/v1/transactions?mode=sync", txRequest(testKey(1), instruction.Deposit{Amount: 1}))

	var update ReceiptUpdate
	require.NoError(t, conn.ReadJSON(&update))
	require.Equal(t, "receipt", update.Type)
	require.False(t, update.Receipt.OK)
	require.Equal(t, "NoPermission", update.Receipt.Error)
}
