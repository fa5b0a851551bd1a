//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/infra"
)

// RegisterPlayer creates a new player account and returns the auth token and
// user ID.
func (env *TestEnv) RegisterPlayer(phone, password string) (token string, userID uuid.UUID) {
	env.t.Helper()

	resp := env.POST("/auth/register", map[string]string{
		"phone":    phone,
		"password": password,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("RegisterPlayer: expected 201, got %d", resp.StatusCode)
	}

	var result struct {
		Token  string    `json:"token"`
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("RegisterPlayer: decode: %v", err)
	}
	return result.Token, result.UserID
}

// LoginPlayer authenticates an existing player and returns the auth token.
func (env *TestEnv) LoginPlayer(phone, password string) string {
	env.t.Helper()

	resp := env.POST("/auth/login", map[string]string{
		"phone":    phone,
		"password": password,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("LoginPlayer: expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("LoginPlayer: decode: %v", err)
	}
	return result.Token
}

// AdminToken mints a token for the admin realm directly from the JWT manager.
func (env *TestEnv) AdminToken() string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmAdmin, uuid.New(), "")
	if err != nil {
		env.t.Fatalf("AdminToken: %v", err)
	}
	return token
}

// DirectDeposit credits a user's balance in the database, bypassing the
// payment flow.
func (env *TestEnv) DirectDeposit(userID uuid.UUID, cents int64) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tag, err := env.Pool.Exec(ctx,
		"UPDATE users SET balance = balance + $2, updated_at = now() WHERE id = $1",
		userID, infra.CentsToNumeric(cents))
	if err != nil {
		env.t.Fatalf("DirectDeposit: %v", err)
	}
	if tag.RowsAffected() != 1 {
		env.t.Fatalf("DirectDeposit: user %s not found", userID)
	}
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// AuthGET performs a GET request with a bearer token.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodGet, env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("AuthGET %s: %v", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("AuthGET %s: %v", path, err)
	}
	return resp
}

// POST performs a POST request with a JSON body. An empty token omits the
// Authorization header.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("POST %s: encode: %v", path, err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// DecodeJSON decodes a response body into a map and closes it.
func DecodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

// PlaceBet keeps posting the bet until a round admits it. Rounds crash at
// random times, so a single attempt can race the round boundary.
func (env *TestEnv) PlaceBet(token, amount string) map[string]interface{} {
	env.t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp := env.POST("/bet", map[string]string{"betAmount": amount}, token)
		if resp.StatusCode == http.StatusCreated {
			return DecodeJSON(env.t, resp)
		}
		resp.Body.Close()
		time.Sleep(50 * time.Millisecond)
	}
	env.t.Fatalf("PlaceBet: no round admitted the bet within 10s")
	return nil
}

// WaitForCrashedRound polls round history until at least one crashed round is
// visible and returns its summary.
func (env *TestEnv) WaitForCrashedRound() map[string]interface{} {
	env.t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp := env.GET("/round/history?limit=1")
		if resp.StatusCode == http.StatusOK {
			var body struct {
				Rounds []map[string]interface{} `json:"rounds"`
			}
			err := json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if err == nil && len(body.Rounds) > 0 {
				return body.Rounds[0]
			}
		} else {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	env.t.Fatalf("WaitForCrashedRound: no crashed round within 15s")
	return nil
}
