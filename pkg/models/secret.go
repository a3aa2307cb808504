package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultSecretProvider = "file"

// Reference to secret material held by a provider, e.g. a key file path
// or an SSM parameter name
type SecretRef struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

func (s SecretRef) String() string {
	return s.Provider + ":" + s.ID
}

func (s SecretRef) IsZero() bool {
	return s.ID == ""
}

// A scalar is a file path, a mapping names a single provider:
//
//	credentials: service-account.json
//	credentials: {aws.ssm: /prod/service-account}
func (s *SecretRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = SecretRef{Provider: DefaultSecretProvider, ID: node.Value}
		return nil
	case yaml.MappingNode:
		var o map[string]string
		if err := node.Decode(&o); err != nil {
			return err
		}
		if len(o) != 1 {
			return fmt.Errorf("exactly one secret provider must be specified")
		}
		for provider, id := range o {
			*s = SecretRef{Provider: provider, ID: id}
		}
		return nil
	}
	return fmt.Errorf("invalid node kind: %v", node.Kind)
}

// Parse "provider:id". A value without a provider prefix, or with a single
// letter prefix (a Windows drive), is a file path.
func (s *SecretRef) Decode(value string) error {
	provider, id, found := strings.Cut(value, ":")
	if !found || len(provider) < 2 || strings.ContainsAny(provider, `/\`) {
		*s = SecretRef{Provider: DefaultSecretProvider, ID: value}
		return nil
	}
	if id == "" {
		return fmt.Errorf("empty secret id for provider %s", provider)
	}
	*s = SecretRef{Provider: provider, ID: id}
	return nil
}
