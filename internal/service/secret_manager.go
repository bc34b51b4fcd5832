package service

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretResolver fetches upstream API keys at startup so they never need to
// live in the deployment environment.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, secretName string) (string, error)
	Close() error
}

type secretResolver struct {
	client    *secretmanager.Client
	projectID string
}

func NewSecretResolver(ctx context.Context, projectID string) (SecretResolver, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP Project ID is not set for the current environment")
	}

	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &secretResolver{
		client:    client,
		projectID: projectID,
	}, nil
}

// ResolveSecret reads the latest version of the named secret.
func (s *secretResolver) ResolveSecret(ctx context.Context, secretName string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, secretName)

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(result.Payload.Data), nil
}

func (s *secretResolver) Close() error {
	return s.client.Close()
}
