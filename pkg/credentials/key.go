package credentials

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
)

const (
	ServiceAccountType = "service_account"
	DefaultTokenURI    = "https://oauth2.googleapis.com/token"
)

// JSON key file of a service account
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id,omitempty"`
	PrivateKeyID string `json:"private_key_id,omitempty"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri,omitempty"`

	rsaKey *rsa.PrivateKey
}

// Parse and validate a service account key. The private key must be a PEM
// encoded RSA key, PKCS#8 or PKCS#1.
func ParseServiceAccountKey(data []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to decode service account key: %w", err)
	}

	if key.Type != "" && key.Type != ServiceAccountType {
		return nil, fmt.Errorf("unsupported credentials type %q", key.Type)
	}
	if key.ClientEmail == "" {
		return nil, fmt.Errorf("service account key has no client_email")
	}
	if key.PrivateKey == "" {
		return nil, fmt.Errorf("service account key has no private_key")
	}
	if key.TokenURI == "" {
		key.TokenURI = DefaultTokenURI
	}

	rsaKey, err := parsePrivateKey([]byte(key.PrivateKey))
	if err != nil {
		return nil, err
	}
	key.rsaKey = rsaKey

	return &key, nil
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("private_key is not PEM encoded")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		rsaKey, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("failed to parse private_key: %w", err)
		}
		return rsaKey, nil
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private_key must be an RSA key, got %T", parsed)
	}
	return rsaKey, nil
}
