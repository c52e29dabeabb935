package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"
)

// Format selects the document encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// SerializeOptions configures Render.
type SerializeOptions struct {
	// Header is written as a comment block above a YAML document, one
	// "# " line per line of text. JSON has no comments and ignores it.
	Header string

	// Indent is the JSON indentation, two spaces when empty.
	Indent string
}

// Render encodes a generic document. Keys are sorted; nil values and maps
// left empty by that are dropped.
func Render(doc map[string]interface{}, format Format, opts SerializeOptions) ([]byte, error) {
	switch format {
	case FormatYAML, "":
		return Serialize(doc, opts)
	case FormatJSON:
		return SerializeJSON(doc, opts.Indent)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// Serialize encodes a generic document as YAML.
func Serialize(doc map[string]interface{}, opts SerializeOptions) ([]byte, error) {
	out, err := sigsyaml.Marshal(prune(doc))
	if err != nil {
		return nil, fmt.Errorf("serializing YAML: %w", err)
	}

	if opts.Header != "" {
		out = append(commentBlock(opts.Header), out...)
	}

	return withTrailingNewline(out), nil
}

// SerializeJSON encodes a generic document as indented JSON. The document
// goes through the YAML encoder first so both formats share key order and
// value conversion.
func SerializeJSON(doc map[string]interface{}, indent string) ([]byte, error) {
	if indent == "" {
		indent = "  "
	}

	yamlDoc, err := sigsyaml.Marshal(prune(doc))
	if err != nil {
		return nil, fmt.Errorf("serializing intermediate YAML: %w", err)
	}

	compact, err := sigsyaml.YAMLToJSON(yamlDoc)
	if err != nil {
		return nil, fmt.Errorf("converting to JSON: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", indent); err != nil {
		return nil, fmt.Errorf("formatting JSON: %w", err)
	}

	return withTrailingNewline(buf.Bytes()), nil
}

// prune returns a copy of m without nil values and without maps that are
// empty after pruning.
func prune(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))

	for k, v := range m {
		if pv, keep := pruneValue(v); keep {
			out[k] = pv
		}
	}

	return out
}

func pruneValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		pm := prune(val)
		return pm, len(pm) > 0
	case []interface{}:
		items := make([]interface{}, 0, len(val))

		for _, item := range val {
			if pi, keep := pruneValue(item); keep {
				items = append(items, pi)
			}
		}

		return items, true
	default:
		return v, true
	}
}

func commentBlock(text string) []byte {
	var b strings.Builder

	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString(strings.TrimRight("# "+line, " "))
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

func withTrailingNewline(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}

	return b
}
