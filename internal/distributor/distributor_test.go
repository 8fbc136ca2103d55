package distributor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagesec/sentinel-go/internal/state"
)

func TestPublishInRegistrationOrder(t *testing.T) {
	t.Parallel()

	d := New(nil, nil)
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		d.Register(func(*state.NormalizedState) { order = append(order, i) })
	}

	d.Publish(state.Default())
	assert.Equal(t, []int{1, 2, 3}, order)
}

// All-or-nothing fan-out: a panicking listener does not stop delivery to the
// remaining listeners, and every listener sees the same snapshot value.
func TestPublishIsolatesPanickingListener(t *testing.T) {
	t.Parallel()

	d := New(nil, nil)
	snapshot := state.Default()

	var got []*state.NormalizedState
	d.Register(func(s *state.NormalizedState) { got = append(got, s) })
	d.Register(func(s *state.NormalizedState) {
		got = append(got, s)
		panic("listener bug")
	})
	d.Register(func(s *state.NormalizedState) { got = append(got, s) })

	require.NotPanics(t, func() { d.Publish(snapshot) })

	require.Len(t, got, 3)
	for _, s := range got {
		assert.Same(t, snapshot, s)
	}
}

func TestSubscriptionIDsAreMonotonic(t *testing.T) {
	t.Parallel()

	d := New(nil, nil)
	a := d.Register(func(*state.NormalizedState) {})
	b := d.Register(func(*state.NormalizedState) {})
	d.Unregister(a)
	c := d.Register(func(*state.NormalizedState) {})

	assert.Less(t, a.ID(), b.ID())
	assert.Less(t, b.ID(), c.ID())
}

func TestUnregisterDuringDeliveryTakesEffectNextPublish(t *testing.T) {
	t.Parallel()

	d := New(nil, nil)
	var firstCalls, secondCalls int

	var second Subscription
	d.Register(func(*state.NormalizedState) {
		firstCalls++
		d.Unregister(second)
	})
	second = d.Register(func(*state.NormalizedState) { secondCalls++ })

	d.Publish(state.Default())
	// The pass that was already underway still offered the snapshot to the
	// unregistered listener.
	assert.Equal(t, 1, firstCalls)
	assert.Equal(t, 1, secondCalls)

	d.Publish(state.Default())
	assert.Equal(t, 2, firstCalls)
	assert.Equal(t, 1, secondCalls)
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	t.Parallel()

	d := New(nil, nil)
	d.Register(func(*state.NormalizedState) {})
	d.Unregister(Subscription{id: 999})
	assert.Equal(t, 1, d.Len())
}

func TestClear(t *testing.T) {
	t.Parallel()

	d := New(nil, nil)
	d.Register(func(*state.NormalizedState) {})
	d.Register(func(*state.NormalizedState) {})
	d.Clear()
	assert.Zero(t, d.Len())

	var called bool
	d.Register(func(*state.NormalizedState) { called = true })
	d.Publish(state.Default())
	assert.True(t, called)
}
