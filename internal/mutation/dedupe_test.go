package mutation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desc(id string, kind Kind, entityType, entityID string, ts int, payload map[string]any) Descriptor {
	return Descriptor{
		ID:         id,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, ts, 0, time.UTC),
		Payload:    payload,
	}
}

// assertPartition checks that keep and remove exactly partition the
// input ids: nothing dropped, nothing duplicated, nothing in both.
func assertPartition(t *testing.T, descs []Descriptor, res Result) {
	t.Helper()

	seen := map[string]int{}
	for _, id := range res.Keep {
		seen[id]++
	}

	for _, id := range res.Remove {
		seen[id]++
	}

	require.Len(t, seen, len(descs))

	for _, d := range descs {
		assert.Equal(t, 1, seen[d.ID], "id %s should appear exactly once across keep+remove", d.ID)
	}
}

func TestDeduplicate_CreateDeleteCancellation(t *testing.T) {
	descs := []Descriptor{
		desc("m1", KindCreate, "batch", "tmp_a", 1, nil),
		desc("m2", KindDelete, "batch", "tmp_a", 2, nil),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.Empty(t, res.Keep)
	assert.ElementsMatch(t, []string{"m1", "m2"}, res.Remove)
	require.Len(t, res.Actions, 1)
	assert.Contains(t, res.Actions[0], "cancelled")
}

func TestDeduplicate_FullLifecycleOnTempID(t *testing.T) {
	// Create, two price updates, then delete, all against a
	// provisional id that never reached the server.
	descs := []Descriptor{
		desc("m1", KindCreate, "sale", "tmp_1", 1, nil),
		desc("m2", KindUpdate, "sale", "tmp_1", 2, map[string]any{"price": 10}),
		desc("m3", KindUpdate, "sale", "tmp_1", 3, map[string]any{"price": 12}),
		desc("m4", KindDelete, "sale", "tmp_1", 4, nil),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.Empty(t, res.Keep)
	assert.ElementsMatch(t, []string{"m1", "m2", "m3", "m4"}, res.Remove)
	assert.Len(t, res.Actions, 1)
}

func TestDeduplicate_DeleteAbsorbsUpdates(t *testing.T) {
	// Create already acknowledged by the server (real id), so it must
	// survive alongside the delete; the intermediate updates are waste.
	descs := []Descriptor{
		desc("m1", KindCreate, "batch", "501", 1, nil),
		desc("m2", KindUpdate, "batch", "501", 2, map[string]any{"headCount": 39}),
		desc("m3", KindUpdate, "batch", "501", 3, map[string]any{"headCount": 38}),
		desc("m4", KindDelete, "batch", "501", 4, nil),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.ElementsMatch(t, []string{"m1", "m4"}, res.Keep)
	assert.ElementsMatch(t, []string{"m2", "m3"}, res.Remove)
	require.Len(t, res.Actions, 1)
	assert.Contains(t, res.Actions[0], "2 updates")
}

func TestDeduplicate_DeleteAbsorbsUpdates_NoCreate(t *testing.T) {
	descs := []Descriptor{
		desc("m1", KindUpdate, "supplier", "9", 1, map[string]any{"phone": "a"}),
		desc("m2", KindDelete, "supplier", "9", 2, nil),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.Equal(t, []string{"m2"}, res.Keep)
	assert.Equal(t, []string{"m1"}, res.Remove)
}

func TestDeduplicate_MultiUpdateMerge(t *testing.T) {
	descs := []Descriptor{
		desc("m1", KindUpdate, "sale", "77", 1, map[string]any{"price": 10}),
		desc("m2", KindUpdate, "sale", "77", 2, map[string]any{"price": 11}),
		desc("m3", KindUpdate, "sale", "77", 3, map[string]any{"price": 12}),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.Equal(t, []string{"m3"}, res.Keep)
	assert.ElementsMatch(t, []string{"m1", "m2"}, res.Remove)
	require.Len(t, res.Actions, 1)
	assert.Contains(t, res.Actions[0], "merged 3 updates")
}

func TestDeduplicate_MultiUpdateMerge_OutOfOrderInput(t *testing.T) {
	// Queue order differs from timestamp order; the chronologically
	// last update wins, not the last-listed one.
	descs := []Descriptor{
		desc("m3", KindUpdate, "sale", "77", 3, map[string]any{"price": 12}),
		desc("m1", KindUpdate, "sale", "77", 1, map[string]any{"price": 10}),
		desc("m2", KindUpdate, "sale", "77", 2, map[string]any{"price": 11}),
	}

	res := Deduplicate(descs)
	assert.Equal(t, []string{"m3"}, res.Keep)
}

func TestDeduplicate_MultiUpdateMerge_KeepsCreate(t *testing.T) {
	descs := []Descriptor{
		desc("m1", KindCreate, "customer", "tmp_c", 1, nil),
		desc("m2", KindUpdate, "customer", "tmp_c", 2, map[string]any{"name": "A"}),
		desc("m3", KindUpdate, "customer", "tmp_c", 3, map[string]any{"name": "B"}),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.ElementsMatch(t, []string{"m1", "m3"}, res.Keep)
	assert.Equal(t, []string{"m2"}, res.Remove)
}

func TestDeduplicate_NoOpGroups(t *testing.T) {
	tests := []struct {
		name  string
		descs []Descriptor
	}{
		{"lone create", []Descriptor{desc("m1", KindCreate, "farm", "tmp_f", 1, nil)}},
		{"lone update", []Descriptor{desc("m1", KindUpdate, "farm", "3", 1, nil)}},
		{"lone delete", []Descriptor{desc("m1", KindDelete, "farm", "3", 1, nil)}},
		{"create then single update", []Descriptor{
			desc("m1", KindCreate, "farm", "tmp_f", 1, nil),
			desc("m2", KindUpdate, "farm", "tmp_f", 2, nil),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Deduplicate(tt.descs)
			assertPartition(t, tt.descs, res)
			assert.Empty(t, res.Remove)
			assert.Empty(t, res.Actions)
		})
	}
}

func TestDeduplicate_CreateDeleteWithRealID_NotCancelled(t *testing.T) {
	// A create the server already acknowledged cannot be cancelled
	// locally; the delete must still be sent.
	descs := []Descriptor{
		desc("m1", KindCreate, "batch", "501", 1, nil),
		desc("m2", KindDelete, "batch", "501", 2, nil),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.ElementsMatch(t, []string{"m1", "m2"}, res.Keep)
	assert.Empty(t, res.Remove)
}

func TestDeduplicate_GroupsAreIndependent(t *testing.T) {
	descs := []Descriptor{
		desc("m1", KindUpdate, "sale", "1", 1, nil),
		desc("m2", KindUpdate, "sale", "2", 2, nil),
		desc("m3", KindUpdate, "sale", "1", 3, nil),
		desc("m4", KindDelete, "batch", "1", 4, nil),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	// sale:1 merges to m3; sale:2 and batch:1 are untouched.
	assert.ElementsMatch(t, []string{"m2", "m3", "m4"}, res.Keep)
	assert.Equal(t, []string{"m1"}, res.Remove)
}

func TestDeduplicate_SameEntityIDDifferentType_NoCollision(t *testing.T) {
	// Entity ids repeat across collections; the composite key must keep
	// them apart even when the id contains a separator-looking value.
	descs := []Descriptor{
		desc("m1", KindUpdate, "sale", "x:1", 1, nil),
		desc("m2", KindUpdate, "sale:x", "1", 2, nil),
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.ElementsMatch(t, []string{"m1", "m2"}, res.Keep)
	assert.Empty(t, res.Remove)
}

func TestDeduplicate_EmptyInput(t *testing.T) {
	res := Deduplicate(nil)
	assert.Empty(t, res.Keep)
	assert.Empty(t, res.Remove)
	assert.Empty(t, res.Actions)
}

func TestDeduplicate_Deterministic(t *testing.T) {
	descs := []Descriptor{
		desc("m1", KindUpdate, "sale", "1", 1, nil),
		desc("m2", KindUpdate, "sale", "1", 2, nil),
		desc("m3", KindDelete, "batch", "2", 3, nil),
		desc("m4", KindCreate, "farm", "tmp_z", 4, nil),
	}

	first := Deduplicate(descs)
	for i := 0; i < 10; i++ {
		again := Deduplicate(descs)
		assert.Equal(t, first.Keep, again.Keep)
		assert.Equal(t, first.Remove, again.Remove)
	}
}

func TestDeduplicate_ManyEntities(t *testing.T) {
	var descs []Descriptor
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("%d", i)
		descs = append(descs,
			desc("u1-"+id, KindUpdate, "batch", id, 1, nil),
			desc("u2-"+id, KindUpdate, "batch", id, 2, nil),
		)
	}

	res := Deduplicate(descs)
	assertPartition(t, descs, res)
	assert.Len(t, res.Keep, 50)
	assert.Len(t, res.Remove, 50)
	assert.Len(t, res.Actions, 50)
}
