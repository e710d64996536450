package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves KV v2 reads for secret/data/arena/llm and counts hits
func fakeVault(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/v1/secret/data/arena/llm" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		hits.Add(1)
		resp := map[string]interface{}{
			"request_id": "test-request",
			"data": map[string]interface{}{
				"data": map[string]interface{}{
					"api_key": "sk-arena-test",
					"version": 2,
				},
				"metadata": map[string]interface{}{"version": 1},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_RequiresToken(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "")

	_, err := NewClient(Config{Address: "http://localhost:8200"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}

func TestClient_GetSecret(t *testing.T) {
	var hits atomic.Int32
	srv := fakeVault(t, &hits)

	client, err := NewClient(Config{Address: srv.URL, Token: "test-token"})
	require.NoError(t, err)

	data, err := client.GetSecret(context.Background(), "llm")
	require.NoError(t, err)
	assert.Equal(t, "sk-arena-test", data["api_key"])
}

func TestClient_GetSecret_NotFound(t *testing.T) {
	var hits atomic.Int32
	srv := fakeVault(t, &hits)

	client, err := NewClient(Config{Address: srv.URL, Token: "test-token"})
	require.NoError(t, err)

	_, err = client.GetSecret(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestClient_GetSecretCaches(t *testing.T) {
	var hits atomic.Int32
	srv := fakeVault(t, &hits)

	client, err := NewClient(Config{Address: srv.URL, Token: "test-token", CacheTTL: time.Minute})
	require.NoError(t, err)

	_, err = client.GetSecret(context.Background(), "llm")
	require.NoError(t, err)
	_, err = client.GetSecret(context.Background(), "llm")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second read must come from cache")

	client.ClearCache()
	_, err = client.GetSecret(context.Background(), "llm")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_GetSecretString(t *testing.T) {
	var hits atomic.Int32
	srv := fakeVault(t, &hits)

	client, err := NewClient(Config{Address: srv.URL, Token: "test-token"})
	require.NoError(t, err)

	key, err := client.GetSecretString(context.Background(), "llm", "api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-arena-test", key)

	_, err = client.GetSecretString(context.Background(), "llm", "version")
	require.Error(t, err, "non-string values are rejected")

	_, err = client.GetSecretString(context.Background(), "llm", "missing")
	require.Error(t, err)
}
