package docker

import (
	"maps"

	"github.com/moby/moby/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Label keys applied to everything devcell creates.
const (
	LabelPrefix       = "dev.devcell"
	LabelManaged      = LabelPrefix + ".managed"
	LabelInstance     = LabelPrefix + ".instance"
	LabelVersion      = LabelPrefix + ".version"
	ManagedLabelValue = "true"

	// OCIVersionLabel is the standard image version label, preferred over
	// LabelVersion when both are present.
	OCIVersionLabel = ocispec.AnnotationVersion
)

// ManagedLabels returns the labels for a resource owned by an instance.
func ManagedLabels(instance string, extra ...map[string]string) map[string]string {
	labels := map[string]string{
		LabelManaged: ManagedLabelValue,
	}
	if instance != "" {
		labels[LabelInstance] = instance
	}
	for _, m := range extra {
		maps.Copy(labels, m)
	}
	return labels
}

// VersionLabels returns the labels recording an image version.
func VersionLabels(version string) map[string]string {
	return map[string]string{
		OCIVersionLabel: version,
		LabelVersion:    version,
	}
}

// VersionFromLabels extracts the image version, or "" when unlabelled.
func VersionFromLabels(labels map[string]string) string {
	if v := labels[OCIVersionLabel]; v != "" {
		return v
	}
	return labels[LabelVersion]
}

// managedFilter creates a filter matching devcell-managed resources.
func managedFilter() client.Filters {
	return client.Filters{}.Add("label", LabelManaged+"="+ManagedLabelValue)
}
