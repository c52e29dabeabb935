// Package maputil provides deep-copy and deep-merge helpers for the generic
// maps produced by decoding project configuration files.
package maputil

// Clone returns a deep copy of a decoded configuration value. Maps and
// slices are copied recursively; scalars are returned as they are.
func Clone(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return DeepCopyMap(val)
	case []interface{}:
		if val == nil {
			return val
		}

		out := make([]interface{}, len(val))
		for i := range val {
			out[i] = Clone(val[i])
		}

		return out
	default:
		return v
	}
}

// DeepCopyMap is Clone for a whole document. A nil map stays nil.
func DeepCopyMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}

	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = Clone(v)
	}

	return out
}
