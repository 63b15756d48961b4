package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/schmitthub/devcell/internal/negotiate"
)

// Release is a published GitHub release.
type Release struct {
	// Version is the tag without its leading "v".
	Version string
	URL     string
	Assets  []Asset
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
}

// githubRelease is a partial response from the GitHub releases API.
type githubRelease struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// GitHubClient reads releases from the GitHub REST API.
type GitHubClient struct {
	http httpConfig
}

// NewGitHubClient creates a client for api.github.com.
func NewGitHubClient(opts ...Option) *GitHubClient {
	return &GitHubClient{http: newHTTPConfig(defaultGitHubAPI, opts)}
}

// LatestRelease returns the latest non-draft, non-prerelease release of repo
// ("owner/name").
func (c *GitHubClient) LatestRelease(ctx context.Context, repo string) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.http.baseURL, repo)
	body, err := c.http.get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var rel githubRelease
	if err := json.NewDecoder(body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release from %s: %w", url, err)
	}
	if rel.TagName == "" {
		return nil, errors.New("empty tag_name in response")
	}
	return &Release{
		Version: negotiate.Normalize(rel.TagName),
		URL:     rel.HTMLURL,
		Assets:  rel.Assets,
	}, nil
}

// AssetName is the release binary name for a platform, e.g.
// "devcell_linux_amd64".
func AssetName(goos, goarch string) string {
	name := fmt.Sprintf("devcell_%s_%s", goos, goarch)
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

// AssetFor returns the binary asset for a platform.
func (r *Release) AssetFor(goos, goarch string) (Asset, bool) {
	want := AssetName(goos, goarch)
	for _, a := range r.Assets {
		if strings.EqualFold(a.Name, want) {
			return a, true
		}
	}
	return Asset{}, false
}

// Download streams a release asset. The caller closes the reader.
func (c *GitHubClient) Download(ctx context.Context, asset Asset) (io.ReadCloser, error) {
	if asset.DownloadURL == "" {
		return nil, fmt.Errorf("asset %s has no download url", asset.Name)
	}
	return c.http.get(ctx, asset.DownloadURL, "application/octet-stream")
}
