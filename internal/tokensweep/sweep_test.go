package tokensweep

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vampouille/georchestra/internal/storage"
	logx "github.com/Vampouille/georchestra/pkg/logx"
)

type memStore struct {
	mu        sync.Mutex
	tokens    map[string]storage.UserToken
	failOnUID string
}

func (m *memStore) FindCreatedBefore(_ context.Context, before time.Time) ([]storage.UserToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.UserToken
	for _, t := range m.tokens {
		if t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (m *memStore) DeleteToken(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if uid == m.failOnUID {
		return errors.New("boom")
	}
	delete(m.tokens, uid)
	return nil
}

func fixedNow() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }

func newMem() *memStore {
	now := fixedNow()
	return &memStore{tokens: map[string]storage.UserToken{
		"old1":  {UID: "old1", CreatedAt: now.Add(-48 * time.Hour)},
		"old2":  {UID: "old2", CreatedAt: now.Add(-25 * time.Hour)},
		"fresh": {UID: "fresh", CreatedAt: now.Add(-time.Hour)},
	}}
}

func TestSweepDeletesOnlyExpired(t *testing.T) {
	t.Parallel()
	st := newMem()
	s := New(st, 24*time.Hour, 0, logx.Nop())
	s.now = fixedNow

	res, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Found)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, fixedNow().Add(-24*time.Hour), res.Cutoff)

	assert.Len(t, st.tokens, 1)
	assert.Contains(t, st.tokens, "fresh")
}

func TestSweepStopsOnStoreError(t *testing.T) {
	t.Parallel()
	st := newMem()
	st.failOnUID = "old1"
	s := New(st, 24*time.Hour, 0, logx.Nop())
	s.now = fixedNow

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "old1")
	assert.Len(t, st.tokens, 3)
}

func TestSweepHonorsContext(t *testing.T) {
	t.Parallel()
	st := newMem()
	s := New(st, 24*time.Hour, 1, logx.Nop())
	s.now = fixedNow

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, st.tokens, 3)
}

func TestSweepAgainstFileStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "tokens.json")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.PutToken(ctx, storage.UserToken{UID: "expired", Token: "a", CreatedAt: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, st.PutToken(ctx, storage.UserToken{UID: "valid", Token: "b"}))

	require.NoError(t, New(st, time.Hour, 100, logx.Nop()).Run(ctx))

	_, err = st.FindByUID(ctx, "expired")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.FindByUID(ctx, "valid")
	assert.NoError(t, err)
}
