package memory

import "fmt"

// deepMerge implements the long-term memory merge semantics of
// spec.md §4.2:
//
//   - maps are merged recursively
//   - lists are extended and deduplicated by their string form
//   - nil values in delta are ignored (never delete a key)
//   - scalars in delta overwrite the corresponding base value
//
// base is mutated in place and returned.
func deepMerge(base, delta map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any)
	}
	for k, dv := range delta {
		if dv == nil {
			continue
		}
		bv, exists := base[k]
		if !exists {
			base[k] = cloneValue(dv)
			continue
		}
		switch dvt := dv.(type) {
		case map[string]any:
			if bvt, ok := bv.(map[string]any); ok {
				base[k] = deepMerge(bvt, dvt)
			} else {
				base[k] = cloneValue(dvt)
			}
		case []any:
			base[k] = mergeLists(bv, dvt)
		default:
			base[k] = dv
		}
	}
	return base
}

// mergeLists extends base with items from delta not already present
// (compared by their fmt.Sprintf("%v", …) string form), preserving
// base's existing order and appending new items in delta order.
func mergeLists(base any, delta []any) []any {
	baseList, _ := base.([]any)
	seen := make(map[string]struct{}, len(baseList))
	out := make([]any, 0, len(baseList)+len(delta))
	for _, v := range baseList {
		seen[stringForm(v)] = struct{}{}
		out = append(out, v)
	}
	for _, v := range delta {
		key := stringForm(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func stringForm(v any) string {
	return fmt.Sprintf("%v", v)
}

// cloneValue deep-copies maps and slices so a caller's delta cannot
// alias the stored long-term value after merge.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}
