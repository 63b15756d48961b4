package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/moby/moby/client"
	digest "github.com/opencontainers/go-digest"
)

// ImageRef identifies a candidate image in a remote registry.
type ImageRef struct {
	// Registry is the registry namespace, e.g. "ghcr.io/schmitthub".
	Registry   string
	Repository string
	Tag        string
}

// String renders registry/repository:tag.
func (r ImageRef) String() string {
	name := r.Repository
	if r.Registry != "" {
		name = r.Registry + "/" + r.Repository
	}
	if r.Tag == "" {
		return name + ":latest"
	}
	return name + ":" + r.Tag
}

// WithRegistry returns a copy of r pointing at another registry.
func (r ImageRef) WithRegistry(registry string) ImageRef {
	r.Registry = registry
	return r
}

// LocalImageID is the content-addressed id of an image in the local store.
type LocalImageID string

// ParseLocalImageID validates a daemon-reported image id.
func ParseLocalImageID(id string) (LocalImageID, error) {
	if _, err := digest.Parse(id); err != nil {
		return "", fmt.Errorf("invalid image id %q: %w", id, err)
	}
	return LocalImageID(id), nil
}

// String returns the full id.
func (id LocalImageID) String() string {
	return string(id)
}

// Short returns the 12-character hex prefix shown by the docker CLI.
func (id LocalImageID) Short() string {
	d, err := digest.Parse(string(id))
	if err != nil {
		return string(id)
	}
	hex := d.Encoded()
	if len(hex) > 12 {
		return hex[:12]
	}
	return hex
}

// PullImage starts a pull and returns the daemon's JSON message stream.
// The caller must drain and close it; the pull is complete on EOF.
func (c *Client) PullImage(ctx context.Context, ref string) (io.ReadCloser, error) {
	resp, err := c.API.ImagePull(ctx, ref, client.ImagePullOptions{})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// TagImage adds target as an additional tag of source.
func (c *Client) TagImage(ctx context.Context, source, target string) error {
	if _, err := c.API.ImageTag(ctx, client.ImageTagOptions{
		Source: source,
		Target: target,
	}); err != nil {
		return fmt.Errorf("tagging %s as %s: %w", source, target, err)
	}
	return nil
}

// UntagImage removes a tag. The underlying image is kept while other tags
// or containers reference it. A missing tag is not an error.
func (c *Client) UntagImage(ctx context.Context, ref string) error {
	_, err := c.API.ImageRemove(ctx, ref, client.ImageRemoveOptions{})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("removing tag %s: %w", ref, err)
	}
	return nil
}

// ImageExists reports whether ref resolves in the local store.
func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := c.API.ImageInspect(ctx, ref)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ImageID resolves ref to its local image id.
func (c *Client) ImageID(ctx context.Context, ref string) (LocalImageID, error) {
	info, err := c.API.ImageInspect(ctx, ref)
	if err != nil {
		return "", err
	}
	return ParseLocalImageID(info.ID)
}

// ImageSize returns the on-disk size of a local image in bytes.
func (c *Client) ImageSize(ctx context.Context, ref string) (int64, error) {
	info, err := c.API.ImageInspect(ctx, ref)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// ImageVersion returns the version label of a local image, or "" when the
// image carries none.
func (c *Client) ImageVersion(ctx context.Context, ref string) (string, error) {
	info, err := c.API.ImageInspect(ctx, ref)
	if err != nil {
		return "", err
	}
	if info.Config == nil {
		return "", nil
	}
	return VersionFromLabels(info.Config.Labels), nil
}

// PruneDanglingImages removes untagged devcell images and returns the space
// reclaimed in bytes.
func (c *Client) PruneDanglingImages(ctx context.Context) (uint64, error) {
	filters := client.Filters{}.
		Add("dangling", "true").
		Add("label", LabelVersion)
	result, err := c.API.ImagePrune(ctx, client.ImagePruneOptions{Filters: filters})
	if err != nil {
		return 0, ErrImagesPruneFailed(err)
	}
	return result.Report.SpaceReclaimed, nil
}
