// Package input implements the CLI Input Assembler: merging default, stdin,
// getopt, and inline-YAML sources into a list of request envelopes per §4.B.
package input

// DeepMerge merges override on top of base with override-wins semantics: at
// each key, dict∧dict recurses; otherwise the right side wins.
func DeepMerge(base, override map[string]any) map[string]any {
	if base == nil && override == nil {
		return nil
	}
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if baseVal, exists := result[k]; exists {
			baseMap, baseIsMap := baseVal.(map[string]any)
			overMap, overIsMap := v.(map[string]any)
			if baseIsMap && overIsMap {
				result[k] = DeepMerge(baseMap, overMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// Normalize applies the normalization rules of §4.B to one raw source value:
//   - null or [] -> nil (source drops out of the cartesian product)
//   - scalar list [s1,s2,...] -> [{_id:s1},{_id:s2},...]
//   - {} -> [{}]; a dict -> [dict]; a list-of-dict -> unchanged
func Normalize(raw any) []map[string]any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		if len(v) == 0 {
			return nil
		}
		out := make([]map[string]any, 0, len(v))
		for _, elem := range v {
			switch e := elem.(type) {
			case map[string]any:
				out = append(out, e)
			default:
				out = append(out, map[string]any{"_id": e})
			}
		}
		return out
	case map[string]any:
		return []map[string]any{v}
	default:
		// bare scalar source: treat as a single-element scalar list
		return []map[string]any{{"_id": v}}
	}
}

// Cartesian computes the Cartesian deep-merge L1 x L2 x ... x Ln of
// normalized source lists, dropping nil sources. Sources are supplied in
// ascending precedence order (later overrides earlier).
func Cartesian(sources ...[]map[string]any) []map[string]any {
	var nonEmpty [][]map[string]any
	for _, s := range sources {
		if len(s) > 0 {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}

	results := []map[string]any{{}}
	for _, list := range nonEmpty {
		var next []map[string]any
		for _, acc := range results {
			for _, item := range list {
				next = append(next, DeepMerge(acc, item))
			}
		}
		results = next
	}
	return results
}
