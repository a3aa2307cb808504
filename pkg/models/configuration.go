package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

const (
	DefaultEndpoint = "https://discoveryengine.googleapis.com/v1alpha/projects/659680475186/locations/global/collections/default_collection/engines/incorta-docs-searcher_1753768303750/servingConfigs/default_search:answer"
	DefaultScope    = "https://www.googleapis.com/auth/cloud-platform"
	DefaultKeyFile  = "service-account.json"
	DefaultPolicy   = "allow := true"

	// Prefix of environment variables overriding the configuration
	EnvPrefix = "EZANSWER"
)

var HTTPClient = &http.Client{Timeout: time.Second * 10}

type StringList []string
type JWKS jose.JSONWebKeySet

type Configuration struct {
	// URL of the answer API
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`
	// Scopes requested for the access token
	Scopes StringList `yaml:"scopes" envconfig:"SCOPES"`
	// Where the service account key is read from
	Credentials SecretRef `yaml:"credentials" envconfig:"CREDENTIALS"`
	// Timeout of outbound requests, 0 keeps the HTTP client default
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// Log level (debug, info, warn, error)
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// Rego policy deciding which queries the server forwards
	Policy string `yaml:"policy" envconfig:"POLICY"`
	// IP address and port the server listens on
	Listen string `yaml:"listen" envconfig:"LISTEN"`
	// Audiences accepted by the server, required when issuers are set
	Audience StringList `yaml:"audience" envconfig:"AUDIENCE"`
	// OIDC issuers allowed to call the server. Empty disables authentication.
	Issuers map[string]*Issuer `yaml:"issuers" ignored:"true"`
	// Supported JWT token algorithms
	Algorithms []jose.SignatureAlgorithm `yaml:"algorithms" envconfig:"ALGORITHMS"`

	issuersByUri map[string]*Issuer
}

// Load a YAML configuration file, then apply EZANSWER_* environment
// overrides and defaults. An empty path skips the file.
func ReadConfiguration(path string) (*Configuration, error) {
	c := Configuration{}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		err = yaml.NewDecoder(f).Decode(&c)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse configuration %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, err
	}

	c.setDefaults()
	return &c, nil
}

func (c *Configuration) setDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}

	if len(c.Scopes) == 0 {
		c.Scopes = StringList{DefaultScope}
	}

	if c.Credentials.IsZero() {
		c.Credentials = SecretRef{Provider: DefaultSecretProvider, ID: DefaultKeyFile}
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Policy == "" {
		c.Policy = DefaultPolicy
	}

	if len(c.Algorithms) == 0 {
		c.Algorithms = []jose.SignatureAlgorithm{"RS256", "ES256"}
	}

	if c.Issuers == nil {
		c.Issuers = map[string]*Issuer{}
	}

	for name, issuer := range c.Issuers {
		issuer.Name = name
	}

	if len(c.Listen) == 0 {
		port := os.Getenv("PORT")
		if port == "" {
			port = "3601"
		}
		c.Listen = "0.0.0.0:" + port
	}
}

// HTTP client used for outbound calls, honoring the configured timeout
func (c *Configuration) Client() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}

// Whether callers of the server must present a token
func (c *Configuration) AuthEnabled() bool {
	return len(c.Issuers) > 0
}

// Get issuer by URI
func (c *Configuration) GetIssuer(uri string) *Issuer {
	if c.issuersByUri == nil {
		c.issuersByUri = map[string]*Issuer{}
	}
	if iss, ok := c.issuersByUri[uri]; ok {
		return iss
	}
	for _, i := range c.Issuers {
		if i.Issuer == uri {
			c.issuersByUri[uri] = i
			return i
		}
	}
	c.issuersByUri[uri] = nil
	return nil
}

// Resolve the JWKS of every configured issuer. Inside a Kubernetes cluster
// the cluster issuer is added as "k8s" unless already configured.
func (c *Configuration) PreloadJWKS(ctx context.Context) error {
	for name, issuer := range c.Issuers {
		issuer.Name = name

		err := issuer.LoadJWKS(ctx, HTTPClient)
		if err != nil {
			return err
		}
	}
	if c.AuthEnabled() {
		c.detectK8s(ctx)
	}
	return nil
}

func (c *Configuration) detectK8s(ctx context.Context) {
	if c.Issuers["k8s"] != nil {
		return
	}

	i, err := getK8sIssuer(ctx)
	if err == rest.ErrNotInCluster {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load k8s issuer")
		return
	}
	c.Issuers["k8s"] = &i
}

func getK8sIssuer(ctx context.Context) (i Issuer, err error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return i, err
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return i, err
	}

	resp, err := client.RESTClient().Get().AbsPath("/.well-known/openid-configuration").DoRaw(ctx)
	if err != nil {
		return i, err
	}
	var discovery struct {
		Issuer  string `json:"issuer"`
		JwksUri string `json:"jwks_uri"`
	}
	if err = json.Unmarshal(resp, &discovery); err != nil {
		return i, err
	}

	resp, err = client.RESTClient().Get().AbsPath("/openid/v1/jwks").DoRaw(ctx)
	if err != nil {
		return i, err
	}

	var jwks jose.JSONWebKeySet
	if err = json.Unmarshal(resp, &jwks); err != nil {
		return i, fmt.Errorf("failed to unmarshal k8s jwks: %w", err)
	}

	i = Issuer{
		Name:    "k8s",
		Issuer:  discovery.Issuer,
		JWKSURI: discovery.JwksUri,
		JWKS:    (*JWKS)(&jwks),
	}
	log.Debug().Str("issuer", i.Issuer).Int("keys", len(jwks.Keys)).Msg("loaded k8s issuer")
	return i, nil
}

func (o *JWKS) UnmarshalYAML(node *yaml.Node) error {
	var jwks jose.JSONWebKeySet
	switch node.Kind {
	case yaml.ScalarNode:
		err := json.Unmarshal([]byte(node.Value), &jwks)
		if err != nil {
			return fmt.Errorf("failed to unmarshal JWKS: %v", err)
		}
	default:
		return fmt.Errorf("invalid node kind: %v", node.Kind)
	}

	o.Keys = jwks.Keys
	return nil
}

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
	case yaml.SequenceNode:
		for _, value := range node.Content {
			if value.Kind != yaml.ScalarNode {
				return fmt.Errorf("invalid node kind: %v", value.Kind)
			}
			*s = append(*s, value.Value)
		}
	default:
		return fmt.Errorf("invalid node kind: %v", node.Kind)
	}
	return nil
}
