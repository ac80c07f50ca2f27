package registry

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	modelsScheme = "models:/"
	runsScheme   = "runs:/"
	latest       = "latest"
)

// Reference names a registry entry. The accepted forms are
//
//	models:/<name>/<version>
//	models:/<name>/latest
//	runs:/<run_id>/<artifact_path>
type Reference struct {
	Name    string
	Version int // 0 means latest
	RunID   string
	Path    string
}

// ParseReference parses the textual form of a Reference.
func ParseReference(s string) (Reference, error) {
	switch {
	case strings.HasPrefix(s, modelsScheme):
		rest := strings.TrimPrefix(s, modelsScheme)
		name, ver, ok := strings.Cut(rest, "/")
		if !ok || name == "" || ver == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
		}
		if ver == latest {
			return Reference{Name: name}, nil
		}
		n, err := strconv.Atoi(ver)
		if err != nil || n < 1 {
			return Reference{}, fmt.Errorf("%w: bad version in %q", ErrInvalidReference, s)
		}
		return Reference{Name: name, Version: n}, nil
	case strings.HasPrefix(s, runsScheme):
		rest := strings.TrimPrefix(s, runsScheme)
		runID, path, ok := strings.Cut(rest, "/")
		if !ok || runID == "" || path == "" {
			return Reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
		}
		return Reference{RunID: runID, Path: path}, nil
	}
	return Reference{}, fmt.Errorf("%w: unknown scheme in %q", ErrInvalidReference, s)
}

// Latest reports whether the reference follows the newest version.
func (r Reference) Latest() bool { return r.RunID == "" && r.Version == 0 }

// Pinned reports whether the reference always resolves to the same version.
// A run registers exactly one version, so run references are pinned too.
func (r Reference) Pinned() bool { return !r.Latest() }

func (r Reference) String() string {
	switch {
	case r.RunID != "":
		return runsScheme + r.RunID + "/" + r.Path
	case r.Version == 0:
		return modelsScheme + r.Name + "/" + latest
	}
	return modelsScheme + r.Name + "/" + strconv.Itoa(r.Version)
}
