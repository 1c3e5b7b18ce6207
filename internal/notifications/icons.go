package notifications

import (
	"os"
	"path/filepath"
)

// DirIconResolver resolves themed icon names against a list of icon
// directories, the way a desktop theme lookup would.
type DirIconResolver struct {
	dirs []string
}

func NewDirIconResolver(dirs []string) *DirIconResolver {
	return &DirIconResolver{dirs: dirs}
}

// Resolve returns the path of the first matching icon file, or "" when the
// name cannot be resolved. Absence simply skips payload attachment.
func (r *DirIconResolver) Resolve(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			return name
		}
		return ""
	}
	for _, dir := range r.dirs {
		for _, ext := range []string{".png", ".svg"} {
			path := filepath.Join(dir, name+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}
