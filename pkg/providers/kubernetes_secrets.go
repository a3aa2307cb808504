package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

type KubernetesSecretsClient interface {
	GetSecret(ctx context.Context, namespace string, name string) (map[string][]byte, error)
}

// Reads a property of a secret, identified by [namespace/]secret/property.
// Without a namespace the pod's namespace is used.
type KubernetesSecretsProvider struct {
	Client    KubernetesSecretsClient
	Namespace string
}

type KubernetesClient struct {
	Client *kubernetes.Clientset
}

func (c *KubernetesClient) GetSecret(ctx context.Context, namespace string, name string) (map[string][]byte, error) {
	secret, err := c.Client.CoreV1().Secrets(namespace).Get(ctx, name, v1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return secret.Data, nil
}

func NewKubernetesProvider() *KubernetesSecretsProvider {
	return &KubernetesSecretsProvider{}
}

func (p *KubernetesSecretsProvider) Read(ctx context.Context, id string) ([]byte, error) {
	if err := p.configure(); err != nil {
		return nil, err
	}

	namespace, secret, property, err := p.parseKubernetesID(id)
	if err != nil {
		return nil, err
	}

	data, err := p.Client.GetSecret(ctx, namespace, secret)
	log.Debug().
		Err(err).
		Str("namespace", namespace).
		Str("secret", secret).
		Msg("get kubernetes secret")
	if err != nil {
		return nil, fmt.Errorf("could not get kubernetes secret %s/%s: %w", namespace, secret, err)
	}

	value, ok := data[property]
	if !ok {
		return nil, fmt.Errorf("property %s not found in kubernetes secret %s/%s", property, namespace, secret)
	}
	return value, nil
}

func (p *KubernetesSecretsProvider) parseKubernetesID(id string) (namespace string, secret string, property string, err error) {
	parts := strings.Split(id, "/")
	switch len(parts) {
	case 3:
		namespace, secret, property = parts[0], parts[1], parts[2]
	case 2:
		namespace, secret, property = p.Namespace, parts[0], parts[1]
	default:
		err = fmt.Errorf("invalid kubernetes secret id: %s", id)
	}
	return
}

func (p *KubernetesSecretsProvider) configure() error {
	if p.Client != nil {
		return nil
	}

	config, err := rest.InClusterConfig()
	if err != nil {
		return err
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return err
	}

	p.Client = &KubernetesClient{Client: client}
	p.Namespace = os.Getenv("KUBERNETES_POD_NAMESPACE")
	if p.Namespace == "" {
		ns, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace")
		if err == nil {
			p.Namespace = strings.TrimSpace(string(ns))
		} else {
			log.Debug().Msg("failed to obtain current kubernetes namespace, using default")
			p.Namespace = "default"
		}
	}

	return nil
}
