package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// LatestVersion is the alias Secret Manager resolves to the newest enabled version.
const LatestVersion = "latest"

// Source resolves secret values by short name.
type Source interface {
	Lookup(ctx context.Context, name string) (string, bool)
}

// VersionName builds the full resource name of a secret version.
func VersionName(projectID, secret, version string) string {
	if version == "" {
		version = LatestVersion
	}
	return "projects/" + projectID + "/secrets/" + secret + "/versions/" + version
}

type accessFunc func(ctx context.Context, resource string) ([]byte, error)

// Store reads secrets of one GCP project.
type Store struct {
	projectID string
	version   string
	access    accessFunc
	close     func() error
	logger    *logrus.Logger
}

// NewStore opens a Secret Manager client. credentialsFile is optional; without
// it application default credentials are used.
func NewStore(ctx context.Context, projectID, credentialsFile string, logger *logrus.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	access := func(ctx context.Context, resource string) ([]byte, error) {
		resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		if err != nil {
			return nil, err
		}
		return resp.GetPayload().GetData(), nil
	}

	return newStore(projectID, access, client.Close, logger), nil
}

func newStore(projectID string, access accessFunc, closeFn func() error, logger *logrus.Logger) *Store {
	return &Store{
		projectID: projectID,
		version:   LatestVersion,
		access:    access,
		close:     closeFn,
		logger:    logger,
	}
}

// Lookup returns the trimmed payload of the secret. Missing, unreadable and
// blank secrets all report false.
func (s *Store) Lookup(ctx context.Context, name string) (string, bool) {
	if name == "" {
		return "", false
	}

	resource := VersionName(s.projectID, name, s.version)
	data, err := s.access(ctx, resource)
	if err != nil {
		s.logger.WithError(err).WithField("secret", name).Debug("Secret not available")
		return "", false
	}

	value := strings.TrimSpace(string(data))
	return value, value != ""
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Fill sets every empty target from src, keyed by secret name, and returns
// how many were filled.
func Fill(ctx context.Context, src Source, targets map[string]*string) int {
	filled := 0
	for name, target := range targets {
		if target == nil || *target != "" {
			continue
		}
		if value, ok := src.Lookup(ctx, name); ok {
			*target = value
			filled++
		}
	}
	return filled
}
