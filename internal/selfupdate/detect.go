// Package selfupdate updates the devcell CLI through whichever installer
// put it on the host.
package selfupdate

import (
	"os"
	"path/filepath"
	"strings"
)

// InstallMarker sits next to a binary installed from a GitHub release.
const InstallMarker = ".devcell-install"

// Method is how the running binary was installed.
type Method int

const (
	MethodUnknown Method = iota
	MethodNPM
	MethodHomebrew
	MethodGoInstall
	MethodRelease
)

func (m Method) String() string {
	switch m {
	case MethodNPM:
		return "npm"
	case MethodHomebrew:
		return "homebrew"
	case MethodGoInstall:
		return "go install"
	case MethodRelease:
		return "release binary"
	default:
		return "unknown"
	}
}

// Paths holds the environment that decides where go install writes.
type Paths struct {
	GOBIN  string
	GOPATH string
	Home   string
}

// PathsFromEnv reads Paths from the process environment.
func PathsFromEnv() Paths {
	home, _ := os.UserHomeDir()
	return Paths{
		GOBIN:  os.Getenv("GOBIN"),
		GOPATH: os.Getenv("GOPATH"),
		Home:   home,
	}
}

// goBinDirs lists the directories go install may have written to.
func (p Paths) goBinDirs() []string {
	if p.GOBIN != "" {
		return []string{filepath.Clean(p.GOBIN)}
	}
	var dirs []string
	for _, gp := range filepath.SplitList(p.GOPATH) {
		if gp != "" {
			dirs = append(dirs, filepath.Join(gp, "bin"))
		}
	}
	if len(dirs) == 0 && p.Home != "" {
		dirs = append(dirs, filepath.Join(p.Home, "go", "bin"))
	}
	return dirs
}

// ResolveExecutable returns the real path of the running binary.
func ResolveExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return exe, nil
	}
	return resolved, nil
}

// Detect classifies a resolved executable path.
func Detect(exe string, paths Paths) Method {
	slashed := filepath.ToSlash(exe)
	dir := filepath.Dir(exe)

	switch {
	case strings.Contains(slashed, "/node_modules/"):
		return MethodNPM
	case strings.Contains(slashed, "/Cellar/"), strings.Contains(slashed, "/homebrew/"), strings.Contains(slashed, "/linuxbrew/"):
		return MethodHomebrew
	}
	if _, err := os.Stat(filepath.Join(dir, InstallMarker)); err == nil {
		return MethodRelease
	}
	for _, d := range paths.goBinDirs() {
		if filepath.Clean(dir) == d {
			return MethodGoInstall
		}
	}
	return MethodUnknown
}
