package provision

import "strings"

// Patch is one exact-match text substitution applied to a configuration
// file. The overrides stay literal substitutions on known default lines
// rather than structured rewrites; see DESIGN.md for the tradeoff.
type Patch struct {
	// Old is the exact default text expected in the file.
	Old string

	// New is the replacement text.
	New string
}

// PatchResult reports how many times one patch applied.
type PatchResult struct {
	Patch Patch
	Count int
}

// NoOp reports whether the expected default text was absent. A no-op patch
// risks leaving default (loopback-only) configuration in place, so callers
// surface it as a warning instead of silently succeeding.
func (r PatchResult) NoOp() bool {
	return r.Count == 0
}

// ApplyPatches applies all patches to content and returns the rewritten
// content together with per-patch application counts.
func ApplyPatches(content string, patches []Patch) (string, []PatchResult) {
	results := make([]PatchResult, 0, len(patches))
	for _, p := range patches {
		count := strings.Count(content, p.Old)
		if count > 0 {
			content = strings.ReplaceAll(content, p.Old, p.New)
		}
		results = append(results, PatchResult{Patch: p, Count: count})
	}
	return content, results
}
