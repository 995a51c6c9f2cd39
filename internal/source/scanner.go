package source

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// DiscoverRoots returns the Claude data directories that exist on this
// machine. CLAUDE_DATA_PATH (comma-separated) overrides platform
// defaults.
func DiscoverRoots() []string {
	if env := os.Getenv("CLAUDE_DATA_PATH"); env != "" {
		var roots []string
		for _, p := range strings.Split(env, ",") {
			if p = strings.TrimSpace(p); p != "" {
				roots = append(roots, p)
			}
		}
		return roots
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	candidates := []string{
		filepath.Join(home, ".claude"),
		filepath.Join(home, ".config", "claude"),
	}
	if runtime.GOOS == "darwin" {
		candidates = append(candidates,
			filepath.Join(home, "Library", "Application Support", "claude"))
	}

	var roots []string
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			roots = append(roots, c)
		}
	}
	return roots
}

// ScanDir walks a data root and returns a Source per JSONL file found
// under its projects directory. Unreadable entries are skipped. The root
// itself doubles as the instance id, so multi-install setups stay
// distinguishable in the daily breakdown.
func ScanDir(root string) ([]Source, error) {
	projectsDir := filepath.Join(root, "projects")

	info, err := os.Stat(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var sources []Source
	err = filepath.WalkDir(projectsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		sources = append(sources, FileSource(path, root))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, nil
}

// Discover scans every known data root. Roots that fail to scan are
// dropped rather than failing the whole discovery.
func Discover(extraRoots ...string) []Source {
	roots := DiscoverRoots()
	roots = append(roots, extraRoots...)

	seen := make(map[string]struct{})
	var all []Source
	for _, root := range roots {
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}
		srcs, err := ScanDir(root)
		if err != nil {
			continue
		}
		all = append(all, srcs...)
	}
	return all
}
