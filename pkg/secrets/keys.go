package secrets

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrKeyUnavailable is returned when no encryption key material is configured.
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// Key is one version of the patient data encryption key.
type Key struct {
	Version  int
	Material []byte
}

// KeyProvider supplies the current encryption key plus any older versions that
// are still needed to read previously stored sessions.
type KeyProvider interface {
	Keys(ctx context.Context) (current Key, previous []Key, err error)
}

// EnvKeyProvider reads key material from environment variables. Previous keys are
// looked up as <Var>_V<n> for every n below Version.
type EnvKeyProvider struct {
	Var     string
	Version int
}

// NewEnvKeyProvider creates a provider reading varName (e.g. PATIENT_ENCRYPTION_KEY).
func NewEnvKeyProvider(varName string, version int) *EnvKeyProvider {
	if version <= 0 {
		version = 1
	}
	return &EnvKeyProvider{Var: varName, Version: version}
}

// Keys implements KeyProvider
func (p *EnvKeyProvider) Keys(ctx context.Context) (Key, []Key, error) {
	raw := os.Getenv(p.Var)
	if raw == "" {
		return Key{}, nil, fmt.Errorf("%w: %s not set", ErrKeyUnavailable, p.Var)
	}
	current := Key{Version: p.Version, Material: DecodeKeyMaterial(raw)}

	var previous []Key
	for v := 1; v < p.Version; v++ {
		if old := os.Getenv(fmt.Sprintf("%s_V%d", p.Var, v)); old != "" {
			previous = append(previous, Key{Version: v, Material: DecodeKeyMaterial(old)})
		}
	}
	return current, previous, nil
}

// VaultKeyProvider reads key material from a Vault KV secret. The field named Field
// holds the current key; Field+"_VERSION" optionally overrides the version and
// Field+"_V<n>" holds older versions.
type VaultKeyProvider struct {
	cfg     VaultConfig
	Field   string
	Version int
}

// NewVaultKeyProvider creates a Vault backed key provider.
func NewVaultKeyProvider(cfg VaultConfig, field string, version int) *VaultKeyProvider {
	if version <= 0 {
		version = 1
	}
	return &VaultKeyProvider{cfg: cfg, Field: field, Version: version}
}

// Keys implements KeyProvider
func (p *VaultKeyProvider) Keys(ctx context.Context) (Key, []Key, error) {
	data, err := FetchVaultData(ctx, p.cfg)
	if err != nil {
		return Key{}, nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	raw := stringifyVaultValue(data[p.Field])
	if raw == "" {
		return Key{}, nil, fmt.Errorf("%w: vault field %s missing", ErrKeyUnavailable, p.Field)
	}

	version := p.Version
	if v, ok := data[p.Field+"_VERSION"]; ok {
		if parsed, err := strconv.Atoi(stringifyVaultValue(v)); err == nil && parsed > 0 {
			version = parsed
		}
	}

	prefix := p.Field + "_V"
	var previous []Key
	for name, value := range data {
		if !strings.HasPrefix(name, prefix) || name == p.Field+"_VERSION" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil || n == version {
			continue
		}
		previous = append(previous, Key{Version: n, Material: DecodeKeyMaterial(stringifyVaultValue(value))})
	}

	return Key{Version: version, Material: DecodeKeyMaterial(raw)}, previous, nil
}

// DecodeKeyMaterial accepts a 64 character hex string or base64 encoding of 32 bytes
// and returns the decoded bytes. Anything else is returned verbatim so it can be
// stretched by a KDF.
func DecodeKeyMaterial(raw string) []byte {
	raw = strings.TrimSpace(raw)
	if len(raw) == 64 {
		if b, err := hex.DecodeString(raw); err == nil {
			return b
		}
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == 32 {
		return b
	}
	return []byte(raw)
}
