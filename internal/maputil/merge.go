package maputil

// DeepMerge returns a new map holding base overlaid with override.
//
// Nested maps are merged key by key, recursively. Any other value present in
// override (scalars, slices, explicit nulls) replaces the value in base
// wholesale. Neither input is modified, and the result shares no nested maps
// or slices with them.
func DeepMerge(base, override map[string]interface{}) map[string]interface{} {
	dst := DeepCopyMap(base)
	if dst == nil {
		dst = make(map[string]interface{}, len(override))
	}

	for k, v := range override {
		ov, overrideIsMap := v.(map[string]interface{})
		bv, baseIsMap := dst[k].(map[string]interface{})

		if overrideIsMap && baseIsMap {
			dst[k] = DeepMerge(bv, ov)
			continue
		}

		dst[k] = Clone(v)
	}

	return dst
}
