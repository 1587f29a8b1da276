package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: AssetUploaded, Actor: 7, Data: map[string]any{"slot": "1xbet"}})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, AssetUploaded, e.Type)
		assert.Equal(t, int64(7), e.Actor)
		assert.False(t, e.Time.IsZero())
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: UserRegistered})
	b.Publish(Event{Type: UserRegistered})
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
	b.Publish(Event{Type: SettingsChanged})
	assert.Equal(t, uint64(0), b.Dropped())
}
