package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceFiles returns the files the configuration was loaded from: the file
// itself followed by the CUE files it imports.
func SourceFiles(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	path := strings.TrimSpace(cfg.Source)
	if path == "" {
		return nil
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil
	}
	files := []string{absPath(path)}
	seen := map[string]bool{files[0]: true}
	imports := make([]string, 0, len(cfg.Imports))
	for _, imp := range cfg.Imports {
		imp = strings.TrimSpace(imp)
		if imp == "" {
			continue
		}
		imp = absPath(imp)
		if seen[imp] {
			continue
		}
		seen[imp] = true
		imports = append(imports, imp)
	}
	sort.Strings(imports)
	return append(files, imports...)
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
