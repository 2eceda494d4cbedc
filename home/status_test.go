package home

import (
	"context"
	"errors"
	"testing"

	"github.com/leeineian/keeper/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryConfig struct {
	values map[string]string
	err    error
}

func (m *memoryConfig) GetBotConfig(_ context.Context, key string) (string, error) {
	return m.values[key], m.err
}

func (m *memoryConfig) SetBotConfig(_ context.Context, key, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func TestStatusSetVisible(t *testing.T) {
	store := &memoryConfig{values: map[string]string{}}
	c := &statusCommand{store: store, cfg: &sys.Config{}}

	content, err := c.setVisible(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, sys.MsgStatusDisabled, content)
	assert.Equal(t, "false", store.values["status_visible"])

	content, err = c.setVisible(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, sys.MsgStatusEnabled, content)
	assert.Equal(t, "true", store.values["status_visible"])
}

func TestStatusSetVisibleFails(t *testing.T) {
	c := &statusCommand{store: &memoryConfig{err: errors.New("read-only")}, cfg: &sys.Config{}}

	content, err := c.setVisible(context.Background(), true)
	assert.Error(t, err)
	assert.Equal(t, sys.ErrStatusSaveFailed, content)
}
