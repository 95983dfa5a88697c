package reload

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/timzifer/ringd/config"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher polls the configuration file and the CUE packages it imports.
type Watcher struct {
	mu    sync.Mutex
	files map[string]fileState
	// packages maps an imported package directory to its .cue files.
	packages map[string][]string
}

// NewWatcher snapshots the sources of cfg.
func NewWatcher(cfg *config.Config) (*Watcher, error) {
	watcher := &Watcher{}
	if err := watcher.Update(cfg); err != nil {
		return nil, err
	}
	return watcher, nil
}

// Update replaces the snapshot with the sources of cfg. Files that do not
// exist are not tracked.
func (w *Watcher) Update(cfg *config.Config) error {
	if w == nil {
		return nil
	}
	sources := config.SourceFiles(cfg)
	files := make(map[string]fileState, len(sources))
	packages := make(map[string][]string)
	for i, path := range sources {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		files[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		if i == 0 {
			continue
		}
		dir := filepath.Dir(path)
		if _, ok := packages[dir]; !ok {
			packages[dir] = packageFiles(dir)
		}
	}
	w.mu.Lock()
	w.files = files
	w.packages = packages
	w.mu.Unlock()
	return nil
}

// Check reports the files that changed, disappeared or were added to an
// imported package since the last snapshot.
func (w *Watcher) Check() ([]string, error) {
	if w == nil {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make(map[string]struct{})
	for path, state := range w.files {
		info, err := os.Stat(path)
		if err != nil {
			changed[path] = struct{}{}
			continue
		}
		if info.ModTime().After(state.modTime) || info.Size() != state.size {
			changed[path] = struct{}{}
		}
	}
	for dir, known := range w.packages {
		for _, path := range symmetricDifference(known, packageFiles(dir)) {
			changed[path] = struct{}{}
		}
	}
	out := make([]string, 0, len(changed))
	for path := range changed {
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

func packageFiles(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// symmetricDifference returns the entries present in exactly one of the
// sorted slices.
func symmetricDifference(a, b []string) []string {
	var diff []string
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			diff = append(diff, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			diff = append(diff, b[j])
			j++
		default:
			i++
			j++
		}
	}
	return diff
}
