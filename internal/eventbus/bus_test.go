package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TaskSubmitted, Data: "u-1"})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, TaskSubmitted, e.Type)
		assert.False(t, e.Time.IsZero())
		assert.Equal(t, "u-1", e.Data)
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)

	b.Publish(Event{Type: TaskStarted})
	b.Publish(Event{Type: TaskFinished}) // dropped, buffer full

	assert.Equal(t, TaskStarted, (<-ch).Type)
	unsub()
	unsub()
	_, ok := <-ch
	assert.False(t, ok)

	b.Publish(Event{Type: TaskFailed}) // no subscribers left
}

func TestNopBus(t *testing.T) {
	t.Parallel()
	var b Bus = Nop{}
	b.Publish(Event{Type: TaskCancelled})
	ch, unsub := b.Subscribe(4)
	defer unsub()
	_, ok := <-ch
	require.False(t, ok)
}
