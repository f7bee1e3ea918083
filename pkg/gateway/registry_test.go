package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/cipher/pkg/persona"
)

type fixedIDConv struct{ id string }

func (c fixedIDConv) Kind() persona.Kind { return persona.KindShop }
func (c fixedIDConv) SessionID() string { return c.id }
func (c fixedIDConv) Greeting() string { return "hi" }
func (c fixedIDConv) Respond(context.Context, string) (string, error) {
	return "", nil
}
func (c fixedIDConv) Invoke(context.Context, string, map[string]any) (string, error) {
	return "", nil
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestRegistryRejectsDuplicateID(t *testing.T) {
	r := NewSessionRegistry()
	firstConn := &closeCounter{}
	first, err := r.Add(fixedIDConv{id: "deadbeef"}, firstConn)
	require.NoError(t, err)

	second, err := r.Add(fixedIDConv{id: "deadbeef"}, &closeCounter{})
	assert.ErrorIs(t, err, ErrDuplicateSession)
	assert.Nil(t, second)
	assert.EqualValues(t, 1, r.Count())

	got, ok := r.Get("deadbeef")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.NoError(t, first.Ctx.Err())
	assert.Zero(t, firstConn.closed)

	r.Remove(first.ID)
	assert.EqualValues(t, 0, r.Count())
	assert.ErrorIs(t, first.Ctx.Err(), context.Canceled)
	assert.Equal(t, 1, firstConn.closed)
}
