package task

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{ done, cancelled bool }

func (h *fakeHandle) Done() bool      { return h.done || h.cancelled }
func (h *fakeHandle) Cancelled() bool { return h.cancelled }
func (h *fakeHandle) Cancel() bool {
	if h.Done() {
		return false
	}
	h.cancelled = true
	return true
}

func noop(context.Context) error { return nil }

func TestCompareOrdersByPriorityThenSeq(t *testing.T) {
	t.Parallel()

	mk := func(name string, p Priority, seq uint64) Task {
		f := NewFunc(name, p, noop)
		f.Metadata().SetSeq(seq)
		return f
	}
	tasks := []Task{
		mk("low-1", PriorityLow, 1),
		mk("med-3", PriorityMedium, 3),
		mk("high-5", PriorityHigh, 5),
		mk("med-2", PriorityMedium, 2),
		mk("high-4", PriorityHigh, 4),
	}
	sort.Slice(tasks, func(i, j int) bool { return Less(tasks[i], tasks[j]) })

	var got []string
	for _, tk := range tasks {
		got = append(got, tk.Metadata().Name())
	}
	assert.Equal(t, []string{"high-4", "high-5", "med-2", "med-3", "low-1"}, got)

	a := mk("a", PriorityMedium, 7)
	assert.Equal(t, 0, Compare(a, a))
	b := a.Clone()
	assert.Equal(t, 0, Compare(a, b), "clones compare equal")
}

func TestCloneSharesIdentityNotState(t *testing.T) {
	t.Parallel()

	ran := 0
	orig := NewFunc("job", PriorityLow, func(context.Context) error {
		ran++
		return nil
	})
	orig.Metadata().SetSeq(3)
	orig.Metadata().SetHandle(&fakeHandle{})

	clone := orig.Clone()
	cm := clone.Metadata()
	require.NotSame(t, orig.Metadata(), cm)
	assert.Equal(t, orig.Metadata().UUID(), cm.UUID())
	assert.Equal(t, "job", cm.Name())
	assert.Equal(t, PriorityLow, cm.Priority())
	assert.Equal(t, uint64(3), cm.Seq())
	assert.Nil(t, cm.Handle(), "clone was never submitted")
	assert.False(t, cm.Live())

	cm.SetPriority(PriorityHigh)
	cm.SetPaused()
	assert.Equal(t, PriorityLow, orig.Metadata().Priority())
	assert.Equal(t, StateWaiting, orig.Metadata().State())

	require.NoError(t, clone.Run(context.Background()))
	assert.Equal(t, 1, ran, "payload is shared")
}

func TestStateSettersRefreshTimestamp(t *testing.T) {
	t.Parallel()

	m := NewMetadata("x", Priority(42))
	assert.Equal(t, DefaultPriority, m.Priority(), "invalid priority falls back to default")
	assert.True(t, m.IsWaiting())

	prev := m.StateChangeTime()
	for _, set := range []func(){m.SetRunning, m.SetPaused, m.SetCancelled, m.SetWaiting} {
		set()
		cur := m.StateChangeTime()
		assert.False(t, cur.Before(prev))
		prev = cur
	}

	m.SetCompleted(context.Canceled)
	assert.True(t, m.IsCompleted())
	assert.Equal(t, context.Canceled.Error(), m.Err())
	m.SetCompleted(nil)
	assert.Empty(t, m.Err())
}

func TestLiveAndInfo(t *testing.T) {
	t.Parallel()

	m := NewMetadata("x", PriorityHigh)
	assert.False(t, m.Live())
	assert.False(t, m.Info().Submitted)

	h := &fakeHandle{}
	m.SetHandle(h)
	assert.True(t, m.Live())
	info := m.Info()
	assert.True(t, info.Submitted)
	assert.False(t, info.Done)

	assert.True(t, h.Cancel())
	assert.False(t, m.Live())
	info = m.Info()
	assert.True(t, info.Done)
	assert.True(t, info.Cancelled)

	raw, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"priority":"HIGH"`)
	assert.Contains(t, string(raw), `"state":"WAITING"`)
}

func TestNilRunFunc(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, NewFunc("nil", PriorityLow, nil).Run(context.Background()), ErrNilRun)
}

func TestParsePriorityAndState(t *testing.T) {
	t.Parallel()

	priorities := []struct {
		in   string
		want Priority
		ok   bool
	}{
		{"HIGH", PriorityHigh, true},
		{" low ", PriorityLow, true},
		{"Medium", PriorityMedium, true},
		{"", PriorityMedium, true},
		{"urgent", 0, false},
	}
	for _, tt := range priorities {
		got, err := ParsePriority(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, st := range []State{StateWaiting, StateRunning, StatePaused, StateCancelled, StateCompleted} {
		got, err := ParseState(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	got, err := ParseState("canceled")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got)
	_, err = ParseState("DONE")
	assert.Error(t, err)

	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StatePaused.IsTerminal())

	var p Priority
	require.NoError(t, json.Unmarshal([]byte(`"low"`), &p))
	assert.Equal(t, PriorityLow, p)
	_, err = json.Marshal(Priority(9))
	assert.Error(t, err)
}
