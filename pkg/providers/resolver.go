package providers

import (
	"context"
	"fmt"

	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/rs/zerolog/log"
)

type SecretProvider interface {
	Read(ctx context.Context, id string) ([]byte, error)
}

type Resolver struct {
	providers map[string]SecretProvider
}

func NewResolver() *Resolver {
	return &Resolver{
		providers: map[string]SecretProvider{},
	}
}

func (r *Resolver) WithDefaultProviders() *Resolver {
	r.Add("env", NewEnvProvider())
	r.Add("env.parts", NewEnvPartsProvider())
	r.Add("string", NewStringProvider())
	r.Add("file", NewFileProvider())
	r.Add("aws.ssm", NewSSMProvider())
	r.Add("kubernetes.secret", NewKubernetesProvider())
	return r
}

func (r *Resolver) Add(id string, provider SecretProvider) {
	r.providers[id] = provider
}

// Read the secret material a reference points to
func (r *Resolver) Resolve(ctx context.Context, ref models.SecretRef) ([]byte, error) {
	provider, ok := r.providers[ref.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown secret provider: %s", ref.Provider)
	}

	log.Debug().Str("provider", ref.Provider).Str("id", ref.ID).Msg("resolving secret")
	value, err := provider.Read(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref.Provider, err)
	}
	return value, nil
}
