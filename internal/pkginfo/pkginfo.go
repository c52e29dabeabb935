// Package pkginfo reads the project's package manifest (package.json) and
// reports what changed between two snapshots of it.
package pkginfo

import (
	"fmt"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"
)

// Dependency sections read from the manifest.
const (
	SectionDependencies    = "dependencies"
	SectionDevDependencies = "devDependencies"
)

// Info is a snapshot of the package manifest.
type Info struct {
	Name string

	// RawVersion is the version string as written in the manifest.
	RawVersion string

	// Version is the parsed semantic version, nil when RawVersion is empty
	// or not a valid semver.
	Version *semver.Version

	// Dependencies maps section → package name → version range.
	Dependencies map[string]map[string]string

	Path string
}

// Load reads and parses the manifest at path.
func Load(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading package manifest: %w", err)
	}

	info, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	info.Path = path

	return info, nil
}

// Parse decodes manifest bytes.
func Parse(data []byte) (*Info, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("package manifest is not valid JSON")
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("package manifest must be a JSON object")
	}

	info := &Info{
		Name:         doc.Get("name").String(),
		RawVersion:   doc.Get("version").String(),
		Dependencies: make(map[string]map[string]string, 2),
	}

	if info.RawVersion != "" {
		if v, err := semver.NewVersion(info.RawVersion); err == nil {
			info.Version = v
		}
	}

	for _, section := range []string{SectionDependencies, SectionDevDependencies} {
		deps := make(map[string]string)

		doc.Get(section).ForEach(func(key, value gjson.Result) bool {
			deps[key.String()] = value.String()
			return true
		})

		info.Dependencies[section] = deps
	}

	return info, nil
}

// String renders "name@version".
func (i *Info) String() string {
	if i == nil {
		return "<unknown package>"
	}

	name := i.Name
	if name == "" {
		name = "<unnamed>"
	}

	if i.RawVersion == "" {
		return name
	}

	return name + "@" + i.RawVersion
}

// DependencyLines renders every dependency as one sorted line, suitable for
// diffing: "dependencies: sass ^1.77.0".
func (i *Info) DependencyLines() []string {
	if i == nil {
		return nil
	}

	var lines []string

	for _, section := range []string{SectionDependencies, SectionDevDependencies} {
		deps := i.Dependencies[section]

		names := make([]string, 0, len(deps))
		for name := range deps {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s: %s %s", section, name, deps[name]))
		}
	}

	return lines
}
