package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingCloser struct {
	calls int
	err   error
}

func (c *countingCloser) Close(context.Context) error {
	c.calls++
	return c.err
}

func TestDisconnect_ClosesOnceWithoutWarning(t *testing.T) {
	var buf bytes.Buffer
	c := &countingCloser{}

	disconnect(c, zerolog.New(&buf))
	assert.Equal(t, 1, c.calls)
	assert.Empty(t, buf.String())

	c.err = errors.New("timeout")
	disconnect(c, zerolog.New(&buf))
	assert.Equal(t, 2, c.calls)
	assert.Contains(t, buf.String(), "failed to disconnect from MongoDB")
}

func TestClosers_RunInReverse(t *testing.T) {
	var order []int
	var c closers
	for i := range 3 {
		c.add(func() { order = append(order, i) })
	}
	c.run()
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestMockDelays(t *testing.T) {
	d := mockDelays(600 * time.Millisecond)
	assert.Equal(t, 600*time.Millisecond, d.Products)
	assert.Equal(t, 400*time.Millisecond, d.Product)
	assert.Equal(t, 800*time.Millisecond, d.Login)
}

func TestRemoteCollections(t *testing.T) {
	names := remoteCollections()
	assert.Contains(t, names, "accounts")
	assert.Contains(t, names, "products")
	assert.Contains(t, names, "cart")
}
