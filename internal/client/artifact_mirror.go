package client

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/policydesk/api/internal/model"
)

// ArtifactMirror copies a published artifact's image into our own storage
type ArtifactMirror struct {
	storage    StorageClient
	httpClient *http.Client
}

// NewArtifactMirror creates a mirror writing into storage
func NewArtifactMirror(storage StorageClient) *ArtifactMirror {
	return &ArtifactMirror{
		storage: storage,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ObjectKey is where the image of an artifact is stored
func ObjectKey(result model.JobResult) string {
	ext := ""
	if u, err := url.Parse(result.ImageURL); err == nil {
		ext = path.Ext(u.Path)
	}
	if ext == "" || len(ext) > 5 {
		ext = ".png"
	}
	return fmt.Sprintf("policy-tables/%s/image%s", result.ArtifactID, ext)
}

// Mirror downloads the artifact image and uploads it unless already stored.
// It returns the public URL of the stored copy.
func (m *ArtifactMirror) Mirror(ctx context.Context, result model.JobResult) (string, error) {
	if result.ImageURL == "" {
		return "", fmt.Errorf("artifact %s has no image url", result.ArtifactID)
	}
	key := ObjectKey(result)

	exists, err := m.storage.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return m.storage.GetPublicURL(key), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.ImageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download artifact image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download artifact image: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	publicURL, err := m.storage.Upload(ctx, key, resp.Body, contentType)
	if err != nil {
		return "", err
	}
	log.Printf("[Mirror] artifact %s stored at %s", result.ArtifactID, publicURL)
	return publicURL, nil
}
