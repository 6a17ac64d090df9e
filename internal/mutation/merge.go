package mutation

// MergeUpdateVariables collapses an ordered list of update payloads into
// one, left to right: a later payload's keys override earlier ones.
// The merge is shallow; nested values are replaced wholesale, not
// merged. Nil payloads are skipped. The result is always a fresh map.
func MergeUpdateVariables(updates []map[string]any) map[string]any {
	merged := make(map[string]any)

	for _, u := range updates {
		for k, v := range u {
			merged[k] = v
		}
	}

	return merged
}
