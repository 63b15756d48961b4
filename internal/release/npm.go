package release

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/schmitthub/devcell/internal/negotiate"
)

// DistTags maps dist-tag names to version strings.
type DistTags map[string]string

// npmPackageInfo is the part of the npm registry document we read.
type npmPackageInfo struct {
	Name     string   `json:"name"`
	DistTags DistTags `json:"dist-tags"`
}

// NPMClient fetches version information from the npm registry.
type NPMClient struct {
	http httpConfig
}

// NewNPMClient creates a new npm registry client.
func NewNPMClient(opts ...Option) *NPMClient {
	return &NPMClient{http: newHTTPConfig(defaultNPMRegistry, opts)}
}

// FetchDistTags retrieves dist-tags for a package.
func (c *NPMClient) FetchDistTags(ctx context.Context, pkg string) (DistTags, error) {
	url := fmt.Sprintf("%s/%s", c.http.baseURL, pkg)
	// npm serves the abbreviated document for this media type
	body, err := c.http.get(ctx, url, "application/vnd.npm.install-v1+json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var info npmPackageInfo
	if err := json.NewDecoder(body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", url, err)
	}
	return info.DistTags, nil
}

// LatestVersion returns the "latest" dist-tag of pkg.
func (c *NPMClient) LatestVersion(ctx context.Context, pkg string) (string, error) {
	tags, err := c.FetchDistTags(ctx, pkg)
	if err != nil {
		return "", err
	}
	v := tags["latest"]
	if v == "" {
		return "", fmt.Errorf("npm package %s has no latest dist-tag", pkg)
	}
	return negotiate.Normalize(v), nil
}
