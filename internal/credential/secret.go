package credential

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// SecretDataKey is the data key inside the Kubernetes Secret.
const SecretDataKey = "pagespeed-api-key"

// SecretBackend persists the key in a Kubernetes Secret so every replica
// of the service sees the same credential.
type SecretBackend struct {
	client    kubernetes.Interface
	namespace string
	name      string
}

func NewSecretBackend(client kubernetes.Interface, namespace, name string) *SecretBackend {
	return &SecretBackend{client: client, namespace: namespace, name: name}
}

// NewInClusterSecretBackend uses the pod's service account.
func NewInClusterSecretBackend(namespace, name string) (*SecretBackend, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	return NewSecretBackend(client, namespace, name), nil
}

func (s *SecretBackend) Load(ctx context.Context) (string, error) {
	secret, err := s.client.CoreV1().Secrets(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(secret.Data[SecretDataKey]), nil
}

func (s *SecretBackend) Save(ctx context.Context, key string) error {
	secrets := s.client.CoreV1().Secrets(s.namespace)

	secret, err := secrets.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = secrets.Create(ctx, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{
				Name:      s.name,
				Namespace: s.namespace,
				Labels:    map[string]string{"app.kubernetes.io/name": "vitals-dashboard"},
			},
			Type: corev1.SecretTypeOpaque,
			Data: map[string][]byte{SecretDataKey: []byte(key)},
		}, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}

	if secret.Data == nil {
		secret.Data = map[string][]byte{}
	}
	secret.Data[SecretDataKey] = []byte(key)
	_, err = secrets.Update(ctx, secret, metav1.UpdateOptions{})
	return err
}

func (s *SecretBackend) Clear(ctx context.Context) error {
	secrets := s.client.CoreV1().Secrets(s.namespace)

	secret, err := secrets.Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, ok := secret.Data[SecretDataKey]; !ok {
		return nil
	}

	delete(secret.Data, SecretDataKey)
	_, err = secrets.Update(ctx, secret, metav1.UpdateOptions{})
	return err
}
