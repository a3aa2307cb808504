package providers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

type SSMProvider struct {
	Client SSMClient
}

type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

func NewSSMProvider() *SSMProvider {
	return &SSMProvider{}
}

var true_ = true

// Read a (SecureString) parameter by name
func (p *SSMProvider) Read(ctx context.Context, id string) ([]byte, error) {
	if err := p.configure(ctx); err != nil {
		return nil, err
	}

	log.Debug().Str("parameter", id).Msg("get ssm parameter")
	resp, err := p.Client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &id,
		WithDecryption: &true_,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get ssm parameter %s: %w", id, err)
	}
	if resp.Parameter == nil || resp.Parameter.Value == nil {
		return nil, fmt.Errorf("ssm parameter %s has no value", id)
	}
	return []byte(*resp.Parameter.Value), nil
}

func (p *SSMProvider) configure(ctx context.Context) error {
	if p.Client != nil {
		return nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	p.Client = ssm.NewFromConfig(cfg)
	return nil
}
