package config

import "fmt"

const (
	canonicalTag = "current"
	backupTag    = "previous"
	stateFile    = "image-state"
)

// Names holds every instance-scoped identifier derived from the settings.
type Names struct {
	Instance  string
	Container string
	// Canonical is the local reference marking a successful acquisition.
	Canonical string
	// Backup is the local reference preserving the pre-swap image.
	Backup string
	// StateFile is the provenance record file name inside StateDir.
	StateFile string
	// PreviousStateFile holds the record of the image behind Backup.
	PreviousStateFile string
}

// NamesFor derives container, tag and state file names for an instance.
// The default instance ("") keeps the unsuffixed names.
func NamesFor(s *Settings, instance string) Names {
	repo := s.Image.Repository
	if repo == "" {
		repo = DefaultRepository
	}
	container := s.Container.Name
	if container == "" {
		container = DefaultContainerName
	}
	n := Names{
		Instance:  instance,
		Container: container,
		Canonical: fmt.Sprintf("%s:%s", repo, canonicalTag),
		Backup:    fmt.Sprintf("%s:%s", repo, backupTag),
		StateFile: stateFile + ".json",

		PreviousStateFile: stateFile + "-previous.json",
	}
	if instance != "" {
		n.Container = container + "-" + instance
		n.Canonical = fmt.Sprintf("%s:%s-%s", repo, canonicalTag, instance)
		n.Backup = fmt.Sprintf("%s:%s-%s", repo, backupTag, instance)
		n.StateFile = fmt.Sprintf("%s-%s.json", stateFile, instance)
		n.PreviousStateFile = fmt.Sprintf("%s-%s-previous.json", stateFile, instance)
	}
	return n
}
