// Package build acquires the devcell image by building it from the build
// definition embedded in the binary.
package build

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed assets/*
var assetsFS embed.FS

// DockerfileName is the Dockerfile path inside the build context.
const DockerfileName = "Dockerfile"

// Spec is a complete build context held in memory.
type Spec struct {
	Files map[string][]byte
}

// EmbeddedSpec returns the build definition bundled with the binary.
func EmbeddedSpec() (Spec, error) {
	entries, err := fs.ReadDir(assetsFS, "assets")
	if err != nil {
		return Spec{}, fmt.Errorf("reading embedded build assets: %w", err)
	}
	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := assetsFS.ReadFile("assets/" + e.Name())
		if err != nil {
			return Spec{}, fmt.Errorf("reading embedded %s: %w", e.Name(), err)
		}
		files[e.Name()] = data
	}
	if _, ok := files[DockerfileName]; !ok {
		return Spec{}, fmt.Errorf("embedded build assets have no %s", DockerfileName)
	}
	return Spec{Files: files}, nil
}

func (s Spec) names() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fileMode(name string) int64 {
	if strings.HasSuffix(name, ".sh") {
		return 0o755
	}
	return 0o644
}

// Tarball packages the spec as a gzipped tar build context.
func (s Spec) Tarball() (io.Reader, error) {
	buf := new(bytes.Buffer)
	gz := gzip.NewWriter(buf)
	tw := tar.NewWriter(gz)

	for _, name := range s.names() {
		content := s.Files[name]
		header := &tar.Header{
			Name: name,
			Mode: fileMode(name),
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", name, err)
		}
		if _, err := tw.Write(content); err != nil {
			return nil, fmt.Errorf("failed to write tar content for %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf, nil
}

// Materialize writes the spec into dir for builders that read a directory.
func (s Spec) Materialize(dir string) error {
	for _, name := range s.names() {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, s.Files[name], os.FileMode(fileMode(name))); err != nil {
			return fmt.Errorf("writing build context file %s: %w", name, err)
		}
	}
	return nil
}
