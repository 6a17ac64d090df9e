// Package mutation implements the offline mutation pipeline: normalizing
// raw queued operations into descriptors, and deduplicating redundant
// operations before they are replayed against the server.
package mutation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the write operation class of a queued mutation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// ValidKind reports whether k is one of the three known operation kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}

	return false
}

// tempIDPrefix marks client-generated provisional ids. Server ids are
// numeric or bare UUIDs, so the prefix cannot collide with them.
const tempIDPrefix = "tmp_"

// NewTempID returns a fresh provisional entity id for a record created
// while offline, before the server has assigned a real id.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a client-generated provisional id that
// the server has never acknowledged.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// EntityKey identifies one domain entity across queued mutations. A
// struct key rather than a joined string, so an entity id containing a
// separator character can never collide with another entity.
type EntityKey struct {
	Type string
	ID   string
}

// Raw is the shape of one pending operation as stored by the queue,
// before extraction. Variables is the untouched mutation body; Context
// carries out-of-band values such as the provisional id of a create.
type Raw struct {
	ID        string            `json:"id"`
	Key       string            `json:"key"` // "<entityType>/<kind>"
	Variables json.RawMessage   `json:"variables"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Descriptor is the normalized view of one queued write operation that
// the deduplicator works on. Read-only once built.
type Descriptor struct {
	ID         string
	Kind       Kind
	EntityType string
	EntityID   string
	Timestamp  time.Time
	Payload    map[string]any
}

// Key returns the composite entity key this mutation targets.
func (d Descriptor) Key() EntityKey {
	return EntityKey{Type: d.EntityType, ID: d.EntityID}
}
