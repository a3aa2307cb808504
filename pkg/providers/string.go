package providers

import (
	"context"
)

type StringProvider struct{}

func NewStringProvider() *StringProvider {
	return &StringProvider{}
}

func (p *StringProvider) Read(ctx context.Context, id string) ([]byte, error) {
	return []byte(id), nil
}
