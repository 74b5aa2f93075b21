package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToExactAndWildcardSubscribers(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var exact, wildcard []Event

	b.Subscribe("proj1", "sub1", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		exact = append(exact, e)
	})
	b.Subscribe("proj1", "", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		wildcard = append(wildcard, e)
	})

	b.Emit("proj1", "sub1", "memory.created", map[string]string{"id": "mem_1"})

	require.Len(t, exact, 1)
	require.Len(t, wildcard, 1)
	assert.Equal(t, "memory.created", exact[0].Type)
}

func TestEmitSkipsOtherSubjects(t *testing.T) {
	b := New()
	var got []Event
	b.Subscribe("proj1", "sub1", func(e Event) { got = append(got, e) })

	b.Emit("proj1", "sub2", "memory.created", nil)

	assert.Empty(t, got)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	var count int
	unsub := b.Subscribe("proj1", "sub1", func(Event) { count++ })

	unsub()
	unsub()
	b.Emit("proj1", "sub1", "memory.created", nil)

	assert.Equal(t, 0, count)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New()
	var delivered bool

	b.Subscribe("proj1", "sub1", func(Event) { panic("boom") })
	b.Subscribe("proj1", "sub1", func(Event) { delivered = true })

	assert.NotPanics(t, func() {
		b.Emit("proj1", "sub1", "memory.created", nil)
	})
	assert.True(t, delivered)
}
