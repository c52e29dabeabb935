package pkginfo

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Change summarises the difference between two manifest snapshots.
type Change struct {
	// Version describes the version transition, empty when unchanged.
	Version string

	// Dependencies is a unified diff of the dependency lines, empty when
	// no dependency changed.
	Dependencies string
}

// IsEmpty reports whether nothing relevant changed.
func (c Change) IsEmpty() bool {
	return c.Version == "" && c.Dependencies == ""
}

// Compare reports what changed from prev to curr.
func Compare(prev, curr *Info) (Change, error) {
	var change Change

	change.Version = versionTransition(prev, curr)

	diff, err := unifiedDiff(joinLines(prev.DependencyLines()), joinLines(curr.DependencyLines()))
	if err != nil {
		return Change{}, err
	}

	change.Dependencies = diff

	return change, nil
}

func versionTransition(prev, curr *Info) string {
	if prev == nil || curr == nil || prev.RawVersion == curr.RawVersion {
		return ""
	}

	if prev.Version != nil && curr.Version != nil {
		switch {
		case curr.Version.GreaterThan(prev.Version):
			return fmt.Sprintf("upgraded %s -> %s", prev.Version, curr.Version)
		case curr.Version.LessThan(prev.Version):
			return fmt.Sprintf("downgraded %s -> %s", prev.Version, curr.Version)
		default:
			return ""
		}
	}

	return fmt.Sprintf("changed %q -> %q", prev.RawVersion, curr.RawVersion)
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}

// unifiedDiff computes a unified diff between two line-oriented documents.
func unifiedDiff(oldDoc, newDoc string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        splitLines(oldDoc),
		B:        splitLines(newDoc),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	}

	unified, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("computing dependency diff: %w", err)
	}

	return unified, nil
}

// splitLines splits a string into lines for diff processing.
// Each element includes a trailing newline for difflib compatibility.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}

	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
