package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/pktbuf/api"
)

func TestBatch_Release(t *testing.T) {
	p, _ := newTestPool(t, 4, 8)
	b := NewBatch(3)

	for i := 0; i < 3; i++ {
		require.True(t, b.Append(p.Get(0)))
	}
	assert.True(t, b.Append(Handle{}), "null handles are skipped")
	assert.False(t, b.Append(p.Get(0)), "batch is full")
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 0, b.Get(0).Index())

	n, err := b.Release(api.ISRContext)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 3, p.Remaining())
}

func TestBatch_ReleaseReportsFirstError(t *testing.T) {
	p, _ := newTestPool(t, 2, 8)
	h := p.Get(0)
	require.NoError(t, p.RefInc(h))

	b := NewBatch(4)
	b.Append(h)
	b.Append(h)
	b.Append(h)

	n, err := b.Release(api.TaskContext)
	assert.Equal(t, 2, n)
	assert.True(t, errors.Is(err, api.ErrDoubleFree))
	assert.Equal(t, 2, p.Remaining())
}

func TestBatch_Reset(t *testing.T) {
	p, _ := newTestPool(t, 2, 8)
	b := NewBatch(2)
	h := p.Get(0)
	b.Append(h)
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.True(t, h.Live(), "reset must not release")
}
