package conflict

import (
	"fmt"
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffCleanupThreshold is the minimum number of raw diffs before running
// the semantic cleanup pass; below this the diff is already minimal.
const diffCleanupThreshold = 2

// FieldDiff summarizes, field by field, how the client version diverges
// from the server version. Advisory output for the conflict prompt shown
// to the user; resolution never depends on it.
func FieldDiff(serverVersion, clientVersion Record) []string {
	keys := make([]string, 0, len(serverVersion.Fields)+len(clientVersion.Fields))
	seen := make(map[string]bool)

	for k := range serverVersion.Fields {
		keys = append(keys, k)
		seen[k] = true
	}

	for k := range clientVersion.Fields {
		if !seen[k] {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	var out []string

	for _, k := range keys {
		sv, sok := serverVersion.Fields[k]
		cv, cok := clientVersion.Fields[k]

		switch {
		case !sok:
			out = append(out, fmt.Sprintf("%s: added locally (%v)", k, cv))
		case !cok:
			out = append(out, fmt.Sprintf("%s: only on server (%v)", k, sv))
		case fmt.Sprint(sv) != fmt.Sprint(cv):
			out = append(out, fmt.Sprintf("%s: %v -> %v%s", k, sv, cv,
				textDelta(fmt.Sprint(sv), fmt.Sprint(cv))))
		}
	}

	return out
}

// textDelta returns a compact " (+i/-d chars)" annotation for string
// values, computed from a character diff. Empty for small changes where
// the annotation adds nothing.
func textDelta(server, client string) string {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(server, client, false)
	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
	}

	var inserted, deleted int

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += len([]rune(d.Text))
		case diffmatchpatch.DiffDelete:
			deleted += len([]rune(d.Text))
		case diffmatchpatch.DiffEqual:
		}
	}

	if inserted == 0 && deleted == 0 {
		return ""
	}

	return fmt.Sprintf(" (+%d/-%d chars)", inserted, deleted)
}
