package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/herdsync/herdsync/internal/mutation"
	"github.com/herdsync/herdsync/internal/queue"
)

func newTestStore(t *testing.T) *queue.Store {
	t.Helper()

	s, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"), queue.Options{Logger: quietLogger})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func enqueue(t *testing.T, s *queue.Store, key, vars string, opCtx map[string]string, ts int) string {
	t.Helper()

	id, err := s.Enqueue(context.Background(), mutation.Raw{
		Key:       key,
		Variables: json.RawMessage(vars),
		Context:   opCtx,
		Timestamp: time.Date(2026, 3, 1, 12, 0, ts, 0, time.UTC),
	})
	require.NoError(t, err)

	return id
}
