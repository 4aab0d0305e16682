// Package paths maps between the pseudo-root namespace, real host paths and
// the mounted paths seen inside the execution environment.
package paths

import (
	"path"
	"sort"
	"strings"

	"github.com/cinedex/cinedex/internal/config"
	apperr "github.com/cinedex/cinedex/internal/errors"
)

// Translator performs bidirectional path mapping. All paths it returns are
// normalized: forward slashes, `.`/`..` collapsed.
type Translator struct {
	roots      map[string]string
	rootNames  []string
	mountRoot  string
	extensions map[string]struct{}
}

// New builds a Translator from library configuration
func New(cfg config.LibraryConfig) *Translator {
	t := &Translator{
		roots:      make(map[string]string, len(cfg.Roots)),
		mountRoot:  Normalize(cfg.MountRoot),
		extensions: make(map[string]struct{}, len(cfg.VideoExtensions)),
	}
	if cfg.MountRoot == "" {
		t.mountRoot = ""
	}
	for name, root := range cfg.Roots {
		t.roots[name] = Normalize(root)
		t.rootNames = append(t.rootNames, name)
	}
	sort.Strings(t.rootNames)
	for _, ext := range cfg.VideoExtensions {
		t.extensions[strings.ToLower(ext)] = struct{}{}
	}
	return t
}

// Normalize collapses `.`/`..` and converts separators to forward slashes.
// Stored paths must pass through here before comparison or persistence.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// RootNames returns the configured pseudo-root names in stable order
func (t *Translator) RootNames() []string {
	return t.rootNames
}

// ResolveRoot maps a pseudo-root name to the absolute directory the process
// should scan. With a mount root configured the library is expected under
// mountRoot/<pseudoName>; otherwise the configured host path is used as is.
func (t *Translator) ResolveRoot(pseudoName string) (string, error) {
	if _, ok := t.roots[pseudoName]; !ok {
		return "", apperr.NewInvalidPath(pseudoName)
	}
	if t.mountRoot != "" {
		return Normalize(t.mountRoot + "/" + pseudoName), nil
	}
	return t.roots[pseudoName], nil
}

// ResolveRelative resolves "pseudoName/sub/dir" below a configured root.
// Relative components may not escape the root.
func (t *Translator) ResolveRelative(pseudoName, rel string) (string, error) {
	root, err := t.ResolveRoot(pseudoName)
	if err != nil {
		return "", err
	}
	if rel == "" || rel == "/" {
		return root, nil
	}
	cleaned := Normalize(strings.TrimPrefix(rel, "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
		return "", apperr.NewInvalidPath(rel)
	}
	return Normalize(root + "/" + cleaned), nil
}

// ToExecutionPath converts a stored host path into the path the process can
// open. Without a mount root the path only gets normalized.
func (t *Translator) ToExecutionPath(hostPath string) string {
	hostPath = Normalize(hostPath)
	if t.mountRoot == "" {
		return hostPath
	}
	for _, name := range t.rootNames {
		root := t.roots[name]
		if sub, ok := pathWithin(hostPath, root); ok {
			return Normalize(t.mountRoot + "/" + name + "/" + sub)
		}
	}
	return hostPath
}

// ToHostPath converts an execution path back into the stable host form used
// for persistence. Inverse of ToExecutionPath.
func (t *Translator) ToHostPath(execPath string) string {
	execPath = Normalize(execPath)
	if t.mountRoot == "" {
		return execPath
	}
	for _, name := range t.rootNames {
		mounted := Normalize(t.mountRoot + "/" + name)
		if sub, ok := pathWithin(execPath, mounted); ok {
			return Normalize(t.roots[name] + "/" + sub)
		}
	}
	return execPath
}

// IsVideoFile reports whether the file name carries a recognized video
// extension.
func (t *Translator) IsVideoFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return false
	}
	_, ok := t.extensions[ext]
	return ok
}

// pathWithin returns the sub-path of p below prefix, matching on whole path
// segments so "/mnt/movies2" is not treated as inside "/mnt/movies".
func pathWithin(p, prefix string) (string, bool) {
	if p == prefix {
		return "", true
	}
	if strings.HasPrefix(p, prefix+"/") {
		return strings.TrimPrefix(p, prefix+"/"), true
	}
	return "", false
}
