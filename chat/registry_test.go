package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puyokura/foodfortalk/model"
)

func TestRegistry_AdmitAndRemove(t *testing.T) {
	r := NewRegistry()
	a := &Session{Conn: newMockConn("a"), UserID: 7, DisplayName: "Ann"}
	b := &Session{Conn: newMockConn("b"), UserID: 3, DisplayName: "B***"}

	assert.Nil(t, r.Admit(a))
	assert.Nil(t, r.Admit(b))
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []model.PresenceEntry{
		{UserID: 3, DisplayName: "B***"},
		{UserID: 7, DisplayName: "Ann"},
	}, r.ListOnline())

	got, ok := r.Find(7)
	require.True(t, ok)
	assert.Same(t, a, got)

	removed, ok := r.Remove(a.Conn)
	require.True(t, ok)
	assert.Same(t, a, removed)

	_, ok = r.Remove(a.Conn)
	assert.False(t, ok)
	_, ok = r.Find(7)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ReplaceKeepsOneSessionPerUser(t *testing.T) {
	r := NewRegistry()
	first := &Session{Conn: newMockConn("first"), UserID: 1}
	second := &Session{Conn: newMockConn("second"), UserID: 1}

	r.Admit(first)
	prev := r.Admit(second)
	assert.Same(t, first, prev)
	assert.Equal(t, 1, r.Count())

	_, ok := r.SessionOf(first.Conn)
	assert.False(t, ok)
	_, ok = r.Remove(first.Conn)
	assert.False(t, ok, "removing the replaced connection is a no-op")

	got, ok := r.Find(1)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newMockConn(fmt.Sprintf("c%d", i))
			r.Admit(&Session{Conn: conn, UserID: uint(i + 1)})
			r.ListOnline()
			if i%2 == 0 {
				r.Remove(conn)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, r.Count())
}

func TestMemoryAnnouncer(t *testing.T) {
	a := NewMemoryAnnouncer()
	ctx := context.Background()

	first, err := a.MarkAnnounced(ctx, "1_2")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := a.MarkAnnounced(ctx, "1_2")
	require.NoError(t, err)
	assert.False(t, again)

	other, err := a.MarkAnnounced(ctx, "1_3")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestNameResolver(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory(amy, bob)
	r := newNameResolver(dir)

	assert.Equal(t, "System", r.displayName(ctx, 0))
	assert.Equal(t, "B***", r.displayName(ctx, 2))
	assert.Equal(t, "B***", r.displayName(ctx, 2))
	assert.Equal(t, 1, dir.calls)

	assert.Equal(t, "Guest", r.displayName(ctx, 99))
	assert.Equal(t, "Guest", r.displayName(ctx, 99))
	assert.Equal(t, 3, dir.calls, "misses are not cached")

	r.remember(1, "Amy the Great")
	assert.Equal(t, "Amy the Great", r.displayName(ctx, 1))
	r.forget(1)
	assert.Equal(t, "Amy", r.displayName(ctx, 1))

	dir.err = errors.New("timeout")
	assert.Equal(t, "Guest", r.displayName(ctx, 42))
}
