package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/build"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

var (
	overlayMu sync.RWMutex
	overlays  = make(map[string]load.Source)
)

// RegisterOverlay registers a virtual CUE file that is visible to every CUE
// configuration loaded afterwards. Paths are relative to the directory of the
// loaded file.
func RegisterOverlay(path string, src load.Source) error {
	normalized, err := normalizeOverlayPath(path)
	if err != nil {
		return err
	}
	if src == nil {
		return errors.New("overlay source must not be nil")
	}
	overlayMu.Lock()
	defer overlayMu.Unlock()
	if _, exists := overlays[normalized]; exists {
		return fmt.Errorf("overlay %s already registered", normalized)
	}
	overlays[normalized] = src
	return nil
}

// RegisterOverlayString registers a virtual CUE file from a raw string.
func RegisterOverlayString(path, cue string) error {
	return RegisterOverlay(path, load.FromString(cue))
}

func normalizeOverlayPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("overlay path must not be empty")
	}
	cleaned := filepath.Clean(trimmed)
	if cleaned == "." || cleaned == string(filepath.Separator) {
		return "", errors.New("overlay path must reference a file")
	}
	if filepath.IsAbs(cleaned) {
		return "", errors.New("overlay path must be relative")
	}
	return cleaned, nil
}

// ResolveOverlays returns the built-in schema overlays plus every registered
// overlay, keyed by absolute path below baseDir.
func ResolveOverlays(baseDir string) map[string]load.Source {
	overlayMu.RLock()
	defer overlayMu.RUnlock()
	resolved := make(map[string]load.Source, len(overlays)+2)
	resolved[filepath.Join(baseDir, schemaModulePath)] = load.FromString(schemaModuleContent)
	resolved[filepath.Join(baseDir, schemaOverlayPath)] = load.FromString(schemaOverlayContent)
	for path, src := range overlays {
		resolved[filepath.Join(baseDir, path)] = src
	}
	return resolved
}

// ResetOverlaysForTest clears the overlay registry. This helper is intended for tests only.
func ResetOverlaysForTest() {
	overlayMu.Lock()
	overlays = make(map[string]load.Source)
	overlayMu.Unlock()
}

// loadCUE evaluates a CUE file, checks its config value against #Config and
// returns it as JSON together with the imported files found on disk.
func loadCUE(path string) ([]byte, []string, error) {
	dir := filepath.Dir(path)
	overlay := ResolveOverlays(dir)
	instances := load.Instances([]string{filepath.Base(path)}, &load.Config{
		Dir:     dir,
		Overlay: overlay,
	})
	if len(instances) == 0 {
		return nil, nil, fmt.Errorf("load cue %s: no instances", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, nil, fmt.Errorf("load cue %s: %w", path, inst.Err)
	}
	deps := importedFiles(inst, overlay)

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, nil, fmt.Errorf("build cue %s: %w", path, err)
	}
	if cfgValue := value.LookupPath(cue.ParsePath("config")); cfgValue.Exists() {
		value = cfgValue
	}

	schema := ctx.CompileString(schemaOverlayContent)
	if err := schema.Err(); err != nil {
		return nil, nil, fmt.Errorf("compile config schema: %w", err)
	}
	value = schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, nil, fmt.Errorf("validate cue %s: %w", path, err)
	}

	raw, err := value.MarshalJSON()
	if err != nil {
		return nil, nil, fmt.Errorf("encode cue %s: %w", path, err)
	}
	return raw, deps, nil
}

// importedFiles lists the files of every package imported by inst, skipping
// virtual overlay files.
func importedFiles(inst *build.Instance, overlay map[string]load.Source) []string {
	var files []string
	seen := make(map[string]bool)
	var walk func(imports []*build.Instance)
	walk = func(imports []*build.Instance) {
		for _, imp := range imports {
			if imp == nil || seen[imp.ImportPath] {
				continue
			}
			seen[imp.ImportPath] = true
			for _, f := range imp.BuildFiles {
				if f == nil || f.Filename == "" {
					continue
				}
				if _, virtual := overlay[f.Filename]; virtual {
					continue
				}
				files = append(files, f.Filename)
			}
			walk(imp.Imports)
		}
	}
	walk(inst.Imports)
	sort.Strings(files)
	return files
}
