package providers

import (
	"context"
	"fmt"
	"os"
)

type FileProvider struct{}

func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

func (p *FileProvider) Read(ctx context.Context, id string) ([]byte, error) {
	content, err := os.ReadFile(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}
