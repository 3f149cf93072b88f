//go:build integration_vault

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/infrastructure/encryption"
	"github.com/luknerlumina/patientflow/pkg/secrets"
)

// vaultFromEnv returns a config for a reachable dev Vault or skips the test
func vaultFromEnv(t *testing.T) secrets.VaultConfig {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := secrets.VaultConfig{
		Enabled:   true,
		Addr:      getEnv("TEST_VAULT_ADDR", os.Getenv("VAULT_ADDR")),
		Token:     getEnv("TEST_VAULT_TOKEN", os.Getenv("VAULT_TOKEN")),
		Mount:     getEnv("TEST_VAULT_MOUNT", "secret"),
		Path:      fmt.Sprintf("patientflow/tests/%d", time.Now().UnixNano()),
		KVVersion: 2,
		Timeout:   3 * time.Second,
		Overwrite: true,
	}
	if cfg.Addr == "" || cfg.Token == "" {
		t.Skip("Vault integration test requires TEST_VAULT_ADDR/TEST_VAULT_TOKEN")
	}

	resp, err := (&http.Client{Timeout: 2 * time.Second}).Get(strings.TrimRight(cfg.Addr, "/") + "/v1/sys/health")
	if err != nil {
		t.Skipf("Vault not reachable: %v", err)
	}
	resp.Body.Close()
	return cfg
}

func putSecret(t *testing.T, cfg secrets.VaultConfig, data map[string]string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"data": data})
	require.NoError(t, err)

	url := fmt.Sprintf("%s/v1/%s/data/%s", strings.TrimRight(cfg.Addr, "/"), cfg.Mount, cfg.Path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vault-Token", cfg.Token)

	resp, err := (&http.Client{Timeout: 3 * time.Second}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 2, resp.StatusCode/100, "vault write failed: %s", resp.Status)
}

func TestVaultSecretsIntegration(t *testing.T) {
	cfg := vaultFromEnv(t)
	putSecret(t, cfg, map[string]string{
		"REDIS_PASSWORD":                 "vault-test-redis",
		"PATIENT_ENCRYPTION_KEY":         strings.Repeat("ab", 32),
		"PATIENT_ENCRYPTION_KEY_VERSION": "2",
		"PATIENT_ENCRYPTION_KEY_V1":      strings.Repeat("cd", 32),
	})
	t.Setenv("REDIS_PASSWORD", "")

	result, err := secrets.ApplyVaultSecrets(context.Background(), cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Loaded, 1)
	require.Equal(t, "vault-test-redis", os.Getenv("REDIS_PASSWORD"))

	codec, err := encryption.NewSessionCodecFromProvider(context.Background(), secrets.NewVaultKeyProvider(cfg, "PATIENT_ENCRYPTION_KEY", 1))
	require.NoError(t, err)
	require.Equal(t, 2, codec.Version())
}
