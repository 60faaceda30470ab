package tooling

import (
	"path/filepath"
	"strings"

	"github.com/chrysochos/society-agent-sub001/apperr"
)

// excludedDirNames are skipped unconditionally by find_files, search_in_files,
// list_project_files, and read_project_file (spec section 4.6).
var excludedDirNames = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"coverage":     true,
	".next":        true,
	".cache":       true,
}

func isExcludedDir(name string) bool {
	return excludedDirNames[name]
}

// resolveSandboxed resolves rel against root and rejects it if it is
// absolute or escapes root once resolved.
func resolveSandboxed(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", apperr.New(apperr.KindBlocked, "absolute paths are not allowed: "+rel)
	}
	joined := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", apperr.New(apperr.KindBlocked, "path escapes working folder: "+rel)
	}
	return joined, nil
}

// correctProjectPath strips common mistaken prefixes a model tends to
// produce when it means a path relative to the project folder, then
// fuzzy-corrects the first path segment against the folders that
// actually exist under projectRoot.
func correctProjectPath(projectRoot, in string, listDir func(string) []string) string {
	p := in
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, "projects/")

	segs := strings.SplitN(p, "/", 2)
	if len(segs) == 0 || segs[0] == "" {
		return p
	}
	candidates := listDir("")
	if len(candidates) == 0 {
		return p
	}
	first := segs[0]
	for _, c := range candidates {
		if c == first {
			return p
		}
	}
	if match, ok := fuzzyUniquePrefix(first, candidates); ok {
		if len(segs) == 2 {
			return match + "/" + segs[1]
		}
		return match
	}

	// "projects/{id}/path": first segment matched no project folder at
	// all, exactly or fuzzily, so it isn't a project name the model
	// mistyped; check whether the segment after it is one instead.
	if len(segs) == 2 {
		inner := strings.SplitN(segs[1], "/", 2)
		for _, c := range candidates {
			if c == inner[0] {
				return segs[1]
			}
		}
	}

	return p
}

// fuzzyUniquePrefix returns the single candidate that has name as a
// prefix, or that prefixes name, if exactly one such candidate exists.
func fuzzyUniquePrefix(name string, candidates []string) (string, bool) {
	var matches []string
	for _, c := range candidates {
		if strings.HasPrefix(c, name) || strings.HasPrefix(name, c) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}
