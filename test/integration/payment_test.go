//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoff/platform/test/integration/testutil"
)

func TestDeposit_Accepted(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, _ := env.RegisterPlayer("+250788200001", "securepass123")
	txn := uuid.New().String()

	resp := env.POST("/payments/deposit", map[string]string{
		"amount":          "50.00",
		"transactionUUID": txn,
	}, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := testutil.DecodeJSON(t, resp)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "50.00", body["amount"])
	assert.Equal(t, txn, body["transactionUUID"])
	assert.Equal(t, []string{txn}, env.Gateway.Collections)

	// The intent is queryable while pending.
	statusResp := env.AuthGET("/payments/status/"+txn, token)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	statusBody := testutil.DecodeJSON(t, statusResp)
	assert.Equal(t, "pending", statusBody["status"])
}

func TestDeposit_SecondOpenIntentRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, _ := env.RegisterPlayer("+250788200010", "securepass123")

	first := env.POST("/payments/deposit", map[string]string{
		"amount":          "20.00",
		"transactionUUID": uuid.New().String(),
	}, token)
	require.Equal(t, http.StatusAccepted, first.StatusCode)
	first.Body.Close()

	second := env.POST("/payments/deposit", map[string]string{
		"amount":          "20.00",
		"transactionUUID": uuid.New().String(),
	}, token)
	defer second.Body.Close()
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestDeposit_SyncReject(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Gateway.CollectStatus = "REJECTED"
	token, _ := env.RegisterPlayer("+250788200002", "securepass123")
	txn := uuid.New().String()

	resp := env.POST("/payments/deposit", map[string]string{
		"amount":          "50.00",
		"transactionUUID": txn,
	}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	statusResp := env.AuthGET("/payments/status/"+txn, token)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	statusBody := testutil.DecodeJSON(t, statusResp)
	assert.Equal(t, "failed", statusBody["status"])
}

func TestDeposit_GatewayUnreachable(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Gateway.Err = assert.AnError
	token, _ := env.RegisterPlayer("+250788200003", "securepass123")
	txn := uuid.New().String()

	resp := env.POST("/payments/deposit", map[string]string{
		"amount":          "50.00",
		"transactionUUID": txn,
	}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Empty(t, env.Gateway.Collections)
}

func TestWithdraw_DebitsImmediately(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.RegisterPlayer("+250788200004", "securepass123")
	env.DirectDeposit(userID, 10_000)

	resp := env.POST("/payments/withdraw", map[string]string{
		"amount":          "40.00",
		"transactionUUID": uuid.New().String(),
	}, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := testutil.DecodeJSON(t, resp)
	assert.Equal(t, "pending", body["status"])
	require.NotNil(t, body["newBalance"])
	assert.Equal(t, "60.00", body["newBalance"])
	assert.Len(t, env.Gateway.Disbursements, 1)
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.RegisterPlayer("+250788200005", "securepass123")
	env.DirectDeposit(userID, 500)

	resp := env.POST("/payments/withdraw", map[string]string{
		"amount":          "40.00",
		"transactionUUID": uuid.New().String(),
	}, token)
	resp.Body.Close()

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Empty(t, env.Gateway.Disbursements)
}

func TestPaymentHistory_ListsOwnIntents(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, _ := env.RegisterPlayer("+250788200006", "securepass123")
	other, _ := env.RegisterPlayer("+250788200007", "securepass123")

	resp := env.POST("/payments/deposit", map[string]string{"amount": "20.00"}, token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	type page struct {
		Transactions []map[string]interface{} `json:"transactions"`
		Count        int                      `json:"count"`
	}

	histResp := env.AuthGET("/payments/history", token)
	require.Equal(t, http.StatusOK, histResp.StatusCode)
	var hist page
	require.NoError(t, json.NewDecoder(histResp.Body).Decode(&hist))
	histResp.Body.Close()
	assert.Equal(t, 1, hist.Count)
	assert.Len(t, hist.Transactions, 1)

	otherResp := env.AuthGET("/payments/history", other)
	require.Equal(t, http.StatusOK, otherResp.StatusCode)
	var otherHist page
	require.NoError(t, json.NewDecoder(otherResp.Body).Decode(&otherHist))
	otherResp.Body.Close()
	assert.Empty(t, otherHist.Transactions)
}

func TestPaymentStatus_OtherUsersIntentHidden(t *testing.T) {
	env := testutil.NewTestEnv(t)
	owner, _ := env.RegisterPlayer("+250788200008", "securepass123")
	stranger, _ := env.RegisterPlayer("+250788200009", "securepass123")
	txn := uuid.New().String()

	resp := env.POST("/payments/deposit", map[string]string{
		"amount":          "20.00",
		"transactionUUID": txn,
	}, owner)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	hidden := env.AuthGET("/payments/status/"+txn, stranger)
	defer hidden.Body.Close()
	assert.Equal(t, http.StatusNotFound, hidden.StatusCode)
}
