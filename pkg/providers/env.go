package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type EnvProvider struct {
	GetEnv func(string) string
}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{
		GetEnv: os.Getenv,
	}
}

func (p *EnvProvider) Read(ctx context.Context, id string) ([]byte, error) {
	value := p.GetEnv(id)
	if value == "" {
		return nil, fmt.Errorf("env variable %s is empty", id)
	}
	return []byte(value), nil
}

// Assembles a service account key from separate variables named after a
// prefix: <prefix>_CLIENT_EMAIL, <prefix>_PRIVATE_KEY and optionally
// <prefix>_PRIVATE_KEY_ID, <prefix>_PROJECT_ID, <prefix>_TOKEN_URI.
// Literal "\n" sequences in the private key are turned into newlines.
type EnvPartsProvider struct {
	GetEnv func(string) string
}

func NewEnvPartsProvider() *EnvPartsProvider {
	return &EnvPartsProvider{
		GetEnv: os.Getenv,
	}
}

func (p *EnvPartsProvider) Read(ctx context.Context, id string) ([]byte, error) {
	prefix := strings.TrimSuffix(id, "_")
	get := func(name string) string {
		return p.GetEnv(prefix + "_" + name)
	}

	clientEmail := get("CLIENT_EMAIL")
	privateKey := get("PRIVATE_KEY")
	if clientEmail == "" || privateKey == "" {
		return nil, fmt.Errorf("missing %s_CLIENT_EMAIL or %s_PRIVATE_KEY env vars", prefix, prefix)
	}

	key := map[string]string{
		"type":         "service_account",
		"client_email": clientEmail,
		"private_key":  strings.ReplaceAll(privateKey, `\n`, "\n"),
	}
	for field, name := range map[string]string{
		"private_key_id": "PRIVATE_KEY_ID",
		"project_id":     "PROJECT_ID",
		"token_uri":      "TOKEN_URI",
	} {
		if v := get(name); v != "" {
			key[field] = v
		}
	}

	return json.Marshal(key)
}
