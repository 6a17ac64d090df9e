package mutation

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// tempIDContextKey is where the enqueuing code stores the provisional id
// of a create operation.
const tempIDContextKey = "tempId"

// entityIDFields are probed in order against the raw variables to find
// the target entity id of an update or delete.
var entityIDFields = []string{"id", "entityId"}

// Extract normalizes one raw queued operation into a Descriptor. The
// second return is false when the record is not extractable: missing
// variables, a malformed operation key, or no resolvable entity id.
// Extraction never fails loudly; an unextractable operation is simply
// skipped by deduplication and left in the queue untouched.
func Extract(raw Raw) (Descriptor, bool) {
	if len(raw.Variables) == 0 {
		return Descriptor{}, false
	}

	entityType, kind, ok := splitKey(raw.Key)
	if !ok {
		return Descriptor{}, false
	}

	entityID, ok := resolveEntityID(raw, kind)
	if !ok {
		return Descriptor{}, false
	}

	var payload map[string]any
	if err := json.Unmarshal(raw.Variables, &payload); err != nil {
		return Descriptor{}, false
	}

	return Descriptor{
		ID:         raw.ID,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  raw.Timestamp,
		Payload:    payload,
	}, true
}

// ExtractAll normalizes every extractable operation in raws, preserving
// input order. Unextractable records are dropped from the result.
func ExtractAll(raws []Raw) []Descriptor {
	descs := make([]Descriptor, 0, len(raws))

	for _, raw := range raws {
		if d, ok := Extract(raw); ok {
			descs = append(descs, d)
		}
	}

	return descs
}

// splitKey parses the two-part operation key "<entityType>/<kind>".
func splitKey(key string) (string, Kind, bool) {
	entityType, kindStr, found := strings.Cut(key, "/")
	if !found || entityType == "" || kindStr == "" {
		return "", "", false
	}

	kind := Kind(kindStr)
	if !ValidKind(kind) {
		return "", "", false
	}

	return entityType, kind, true
}

// resolveEntityID finds the entity id for the operation. Creates carry a
// provisional id in the operation context; updates and deletes name the
// target inside the mutation variables.
func resolveEntityID(raw Raw, kind Kind) (string, bool) {
	if kind == KindCreate {
		id, ok := raw.Context[tempIDContextKey]

		return id, ok && id != ""
	}

	for _, field := range entityIDFields {
		// Peek at the raw JSON rather than decoding the whole body;
		// the id may be a number or a string.
		if v := gjson.GetBytes(raw.Variables, field); v.Exists() {
			if s := v.String(); s != "" {
				return s, true
			}
		}
	}

	return "", false
}
