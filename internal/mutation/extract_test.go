package mutation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawOp(id, key string, vars string, ctx map[string]string) Raw {
	return Raw{
		ID:        id,
		Key:       key,
		Variables: json.RawMessage(vars),
		Context:   ctx,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestExtract_Create(t *testing.T) {
	raw := rawOp("m1", "batch/create", `{"name":"spring lambs","headCount":40}`,
		map[string]string{"tempId": "tmp_9f2c"})

	d, ok := Extract(raw)
	require.True(t, ok)
	assert.Equal(t, "m1", d.ID)
	assert.Equal(t, KindCreate, d.Kind)
	assert.Equal(t, "batch", d.EntityType)
	assert.Equal(t, "tmp_9f2c", d.EntityID)
	assert.Equal(t, raw.Timestamp, d.Timestamp)
	assert.Equal(t, "spring lambs", d.Payload["name"])
}

func TestExtract_UpdateReadsIDFromVariables(t *testing.T) {
	d, ok := Extract(rawOp("m2", "sale/update", `{"id":"77","price":120}`, nil))
	require.True(t, ok)
	assert.Equal(t, KindUpdate, d.Kind)
	assert.Equal(t, "77", d.EntityID)
}

func TestExtract_NumericIDCoercedToString(t *testing.T) {
	d, ok := Extract(rawOp("m3", "expense/delete", `{"id":42}`, nil))
	require.True(t, ok)
	assert.Equal(t, "42", d.EntityID)
}

func TestExtract_SecondaryEntityIDField(t *testing.T) {
	d, ok := Extract(rawOp("m4", "vaccination/update", `{"entityId":"v-9","dose":2}`, nil))
	require.True(t, ok)
	assert.Equal(t, "v-9", d.EntityID)
}

func TestExtract_NotExtractable(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
	}{
		{"no variables", rawOp("m1", "batch/update", ``, nil)},
		{"missing key", rawOp("m1", "", `{"id":"1"}`, nil)},
		{"one-part key", rawOp("m1", "batch", `{"id":"1"}`, nil)},
		{"empty kind", rawOp("m1", "batch/", `{"id":"1"}`, nil)},
		{"unknown kind", rawOp("m1", "batch/upsert", `{"id":"1"}`, nil)},
		{"create without temp id", rawOp("m1", "batch/create", `{"name":"x"}`, nil)},
		{"create with empty temp id", rawOp("m1", "batch/create", `{"name":"x"}`, map[string]string{"tempId": ""})},
		{"update without id", rawOp("m1", "batch/update", `{"name":"x"}`, nil)},
		{"variables not an object", rawOp("m1", "batch/update", `[1,2]`, nil)},
		{"malformed json", rawOp("m1", "batch/update", `{"id":`, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Extract(tt.raw)
			assert.False(t, ok)
		})
	}
}

func TestExtractAll_DropsUnextractable(t *testing.T) {
	raws := []Raw{
		rawOp("m1", "batch/update", `{"id":"1"}`, nil),
		rawOp("m2", "batch/update", `{}`, nil), // no id
		rawOp("m3", "batch/delete", `{"id":"1"}`, nil),
	}

	descs := ExtractAll(raws)
	require.Len(t, descs, 2)
	assert.Equal(t, "m1", descs[0].ID)
	assert.Equal(t, "m3", descs[1].ID)
}

func TestTempID_RoundTrip(t *testing.T) {
	id := NewTempID()
	assert.True(t, IsTempID(id))
	assert.False(t, IsTempID("77"))
	assert.False(t, IsTempID("9f2c0c1e-8a52-4f9b-b4fd-000000000000"))
}
