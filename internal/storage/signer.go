// Package storage issues short-lived download links for vault objects.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrObjectNotFound is returned when the object behind a document is missing.
var ErrObjectNotFound = errors.New("storage object not found")

// Signer issues a signed GET URL for exactly one object.
type Signer interface {
	SignedURL(ctx context.Context, object string, ttl time.Duration) (string, error)
}

// GCSSigner signs URLs for objects in one Cloud Storage bucket.
type GCSSigner struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
}

// NewGCSSigner creates a signer. credentialsFile may be empty to use
// application default credentials.
func NewGCSSigner(ctx context.Context, bucket, credentialsFile string, timeout time.Duration) (*GCSSigner, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("storage credentials not readable at %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSSigner{client: client, bucket: bucket, timeout: timeout}, nil
}

// SignedURL verifies the object exists, then signs a V4 GET URL valid for ttl.
func (s *GCSSigner) SignedURL(ctx context.Context, object string, ttl time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	bucket := s.client.Bucket(s.bucket)
	if _, err := bucket.Object(object).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("failed to stat object: %w", err)
	}

	signed, err := bucket.SignedURL(object, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL: %w", err)
	}
	return signed, nil
}

// Close releases the storage client.
func (s *GCSSigner) Close() error {
	return s.client.Close()
}

// StubSigner returns unsigned local URLs for development without cloud
// credentials.
type StubSigner struct {
	BaseURL string
}

// SignedURL builds a fake link carrying the expiry as a query parameter.
func (s StubSigner) SignedURL(ctx context.Context, object string, ttl time.Duration) (string, error) {
	q := url.Values{}
	q.Set("expires", time.Now().Add(ttl).UTC().Format(time.RFC3339))
	return fmt.Sprintf("%s/dev-storage/%s?%s", s.BaseURL, url.PathEscape(object), q.Encode()), nil
}
