package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "github.com/Vampouille/georchestra/pkg/logx"
)

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "tokens.db"), BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	assert.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err, "file driver needs a path")
}

func TestStoreContract(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openDriver(t, driver)
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			require.NoError(t, st.PutToken(ctx, UserToken{UID: "carol", Token: "t3", CreatedAt: base.Add(2 * time.Hour)}))
			require.NoError(t, st.PutToken(ctx, UserToken{UID: "alice", Token: "t1", CreatedAt: base}))
			require.NoError(t, st.PutToken(ctx, UserToken{UID: "bob", Token: "t2", CreatedAt: base.Add(time.Hour)}))
			assert.Error(t, st.PutToken(ctx, UserToken{Token: "orphan"}))

			got, err := st.FindByToken(ctx, "t2")
			require.NoError(t, err)
			assert.Equal(t, "bob", got.UID)
			assert.True(t, got.CreatedAt.Equal(base.Add(time.Hour)))

			_, err = st.FindByUID(ctx, "nobody")
			assert.ErrorIs(t, err, ErrNotFound)

			old, err := st.FindCreatedBefore(ctx, base.Add(2*time.Hour))
			require.NoError(t, err)
			require.Len(t, old, 2, "strictly before")
			assert.Equal(t, "alice", old[0].UID)
			assert.Equal(t, "bob", old[1].UID)

			// replacing a uid moves its creation date
			require.NoError(t, st.PutToken(ctx, UserToken{UID: "alice", Token: "t1b", CreatedAt: base.Add(3 * time.Hour)}))
			old, err = st.FindCreatedBefore(ctx, base.Add(2*time.Hour))
			require.NoError(t, err)
			require.Len(t, old, 1)
			assert.Equal(t, "bob", old[0].UID)

			require.NoError(t, st.DeleteToken(ctx, "bob"))
			require.NoError(t, st.DeleteToken(ctx, "bob"))
			_, err = st.FindByUID(ctx, "bob")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStoreReplaysAfterReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state", "tokens.json")}

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.PutToken(ctx, UserToken{UID: "a", Token: "x"}))
	require.NoError(t, st.PutToken(ctx, UserToken{UID: "b", Token: "y"}))
	require.NoError(t, st.DeleteToken(ctx, "a"))

	// journal only, no compaction yet
	fs := st.(*fileStore)
	fs.mu.Lock()
	require.NoError(t, replayJournal(fs.journal.Name(), map[string]UserToken{}))
	fs.mu.Unlock()
	require.NoError(t, st.Close())
	assert.ErrorIs(t, st.PutToken(ctx, UserToken{UID: "c"}), ErrClosed)

	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	_, err = st.FindByUID(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := st.FindByUID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "y", got.Token)
}
