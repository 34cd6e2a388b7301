package goplus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitGroup_RecoversPanic(t *testing.T) {
	g := &WaitGroup{}
	done := false

	g.Go(func() { panic("boom") })
	g.Go(func() { done = true })
	g.Wait()

	assert.True(t, done)
	assert.Equal(t, int64(0), g.Running())
}

func TestSafe(t *testing.T) {
	err := Safe(func() error { panic("bad source") })
	assert.EqualError(t, err, "panic: bad source")

	sentinel := errors.New("plain")
	assert.ErrorIs(t, Safe(func() error { return sentinel }), sentinel)
	assert.NoError(t, Safe(func() error { return nil }))
}
