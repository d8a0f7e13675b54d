package secrets

import (
	"context"
	"fmt"

	"fjacquet/ebics-mt940/internal/logging"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// secretClient is the part of the Secret Manager client the source uses.
type secretClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
}

// GCPSource keeps keys in Google Secret Manager, one secret per key.
type GCPSource struct {
	client    secretClient
	closer    func() error
	projectID string
	logger    logging.Logger
}

// NewGCPSource connects to Secret Manager with application default credentials.
func NewGCPSource(ctx context.Context, projectID string, logger logging.Logger) (*GCPSource, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	s := newGCPSource(client, projectID, logger)
	s.closer = client.Close
	return s, nil
}

func newGCPSource(client secretClient, projectID string, logger logging.Logger) *GCPSource {
	return &GCPSource{client: client, projectID: projectID, logger: logging.OrDefault(logger)}
}

// Close releases the client connection.
func (s *GCPSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *GCPSource) secretName(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, name)
}

// PrivateKeyPEM implements Source.
func (s *GCPSource) PrivateKeyPEM(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	res, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.secretName(name) + "/versions/latest",
	})
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.secretName(name))
	}
	if err != nil {
		return nil, err
	}
	return res.GetPayload().GetData(), nil
}

// StorePrivateKeyPEM implements Source. It adds a new version, creating the
// secret first if needed.
func (s *GCPSource) StorePrivateKeyPEM(ctx context.Context, name string, pem []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.ensureSecret(ctx, name); err != nil {
		return err
	}
	_, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretName(name),
		Payload: &secretmanagerpb.SecretPayload{Data: pem},
	})
	if err == nil {
		s.logger.Info("Stored key in secret manager", logging.Field{Key: "secret", Value: name})
	}
	return err
}

func (s *GCPSource) ensureSecret(ctx context.Context, name string) error {
	_, err := s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: s.secretName(name)})
	if status.Code(err) == codes.NotFound {
		_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   fmt.Sprintf("projects/%s", s.projectID),
			SecretId: name,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{Automatic: &secretmanagerpb.Replication_Automatic{}},
				},
			},
		})
	}
	return err
}
