package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	ids map[string]struct{}
	err error
}

func (s stubLister) ListTradeIDs(context.Context, string) (map[string]struct{}, error) {
	return s.ids, s.err
}

func TestSeenCache_IsSeen(t *testing.T) {
	c := NewSeenCache(30 * time.Second)

	assert.False(t, c.IsSeen("1"))
	c.Mark("1")
	assert.True(t, c.IsSeen("1"))
	assert.False(t, c.IsSeen("1-open"))
}

func TestSeenCache_TTL(t *testing.T) {
	c := NewSeenCache(100 * time.Millisecond)

	c.Mark("1")
	assert.True(t, c.IsSeen("1"))

	time.Sleep(150 * time.Millisecond)
	assert.False(t, c.IsSeen("1"))
}

func TestSeenCache_Concurrent(t *testing.T) {
	c := NewSeenCache(30 * time.Second)
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				tid := fmt.Sprintf("%d", id*1000+j)
				c.Mark(tid)
				c.IsSeen(tid)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 1000, c.Len())
}

func TestSeenCache_LoadFromDB(t *testing.T) {
	c := NewSeenCache(time.Minute)

	err := c.LoadFromDB(context.Background(), stubLister{ids: map[string]struct{}{"a": {}, "b": {}}}, "hl_trades")
	require.NoError(t, err)
	assert.True(t, c.IsSeen("a"))
	assert.True(t, c.IsSeen("b"))
	assert.Equal(t, 2, c.Stats()["item_count"])

	err = c.LoadFromDB(context.Background(), stubLister{err: errors.New("down")}, "hl_trades")
	assert.Error(t, err)
	assert.Error(t, c.LoadFromDB(context.Background(), nil, "hl_trades"))
}
