package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedExtension struct {
	name string
	cmds map[string]Handler
}

func (n namedExtension) Name() string                 { return n.name }
func (n namedExtension) Commands() map[string]Handler { return n.cmds }

func TestNewRegistryRejectsBadInput(t *testing.T) {
	_, err := NewRegistry(nil, &fakeExtension{}, &fakeExtension{})
	assert.ErrorContains(t, err, "duplicate extension")

	_, err = NewRegistry([]string{"fake.[oops"}, &fakeExtension{})
	assert.ErrorContains(t, err, "invalid disabled command pattern")

	_, err = NewRegistry(nil, namedExtension{name: "a.b"})
	assert.ErrorContains(t, err, "invalid extension name")

	_, err = NewRegistry(nil, namedExtension{name: "x", cmds: map[string]Handler{"y": {Mode: Sync}}})
	assert.ErrorContains(t, err, "has no body")
}

func TestRegistryNames(t *testing.T) {
	reg, err := NewRegistry(nil, &fakeExtension{})
	require.NoError(t, err)
	assert.Equal(t, []string{"fake.crash", "fake.echo", "fake.fail", "fake.reject", "fake.sleep"}, reg.Names())

	h, err := reg.Resolve("fake", "sleep")
	require.NoError(t, err)
	assert.Equal(t, Async, h.Mode)
	assert.Equal(t, "async", h.Mode.String())
}

func TestSplitCommand(t *testing.T) {
	ext, cmd, err := SplitCommand("clean.execute.clean_step")
	require.NoError(t, err)
	assert.Equal(t, "clean", ext)
	assert.Equal(t, "execute.clean_step", cmd)

	_, _, err = SplitCommand("clean")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}
