package pool

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/pktbuf/api"
	"github.com/momentics/pktbuf/fake"
)

// newTestPool builds a pool logging into a capture hook.
func newTestPool(t testing.TB, count, size int, opts ...Option) (*Pool, *logtest.Hook) {
	t.Helper()
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	opts = append([]Option{WithLogger(api.NewLogrusLogger(l))}, opts...)
	p, err := New(Config{Count: count, DataSize: size}, opts...)
	require.NoError(t, err)
	return p, hook
}

var registryModes = map[string][]Option{
	"stack": nil,
	"queue": {WithLockFreeRegistry()},
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := map[string]Config{
		"zero count":     {Count: 0, DataSize: 16},
		"negative count": {Count: -1, DataSize: 16},
		"huge count":     {Count: MaxCount + 1, DataSize: 16},
		"zero size":      {Count: 4, DataSize: 0},
		"too large":      {Count: MaxCount, DataSize: 1 << 30},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := New(cfg)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, api.ErrInvalidConfig))
			assert.Equal(t, api.ErrCodeInvalidConfig, api.CodeOf(err))
		})
	}
}

func TestNew_BadOption(t *testing.T) {
	_, err := New(Config{Count: 1, DataSize: 1}, WithLockProvider(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't set options")

	_, err = New(Config{Count: 1, DataSize: 1}, WithLogger(nil))
	require.Error(t, err)
}

func TestNew_Introspection(t *testing.T) {
	p, hook := newTestPool(t, 8, 256)
	assert.Equal(t, 8, p.Remaining())
	assert.Equal(t, 8, p.Capacity())
	assert.Equal(t, 256, p.DataSize())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestRemainingStaysInBounds(t *testing.T) {
	for mode, opts := range registryModes {
		t.Run(mode, func(t *testing.T) {
			const n = 6
			p, _ := newTestPool(t, n, 32, opts...)
			rnd := rand.New(rand.NewSource(7))
			var live []Handle

			for i := 0; i < 5000; i++ {
				if rnd.Intn(2) == 0 {
					h := p.Get(0)
					if len(live) == n {
						require.True(t, h.IsNil(), "allocation past capacity")
					} else {
						require.False(t, h.IsNil())
						live = append(live, h)
					}
				} else if len(live) > 0 {
					j := rnd.Intn(len(live))
					require.NoError(t, p.Free(live[j]))
					live = append(live[:j], live[j+1:]...)
				}
				r := p.Remaining()
				require.GreaterOrEqual(t, r, 0)
				require.LessOrEqual(t, r, n)
				require.Equal(t, n-len(live), r)
			}
		})
	}
}

func TestExhaustion(t *testing.T) {
	for mode, opts := range registryModes {
		t.Run(mode, func(t *testing.T) {
			const n = 4
			p, _ := newTestPool(t, n, 16, opts...)
			hs := make([]Handle, 0, n)
			for i := 0; i < n; i++ {
				h := p.Get(0)
				require.False(t, h.IsNil())
				hs = append(hs, h)
			}
			assert.Equal(t, 0, p.Remaining())
			assert.True(t, p.Get(0).IsNil())
			assert.True(t, p.GetISR(0).IsNil())
			assert.Equal(t, uint64(2), p.Stats().Exhausted)

			require.NoError(t, p.Free(hs[0]))
			h := p.Get(0)
			require.False(t, h.IsNil(), "one free must enable exactly one get")
			assert.True(t, p.Get(0).IsNil())
		})
	}
}

func TestGet_DistinctSlots(t *testing.T) {
	p, _ := newTestPool(t, 16, 8)
	seen := map[int]bool{}
	for i := 0; i < 16; i++ {
		h := p.Get(1 << 20) // size is ignored
		require.False(t, h.IsNil())
		assert.False(t, seen[h.Index()], "slot %d handed out twice", h.Index())
		seen[h.Index()] = true
		assert.Len(t, h.Payload(), 8)
		assert.Equal(t, 1, h.Refs())
	}
}

func TestFreeNil(t *testing.T) {
	p, _ := newTestPool(t, 3, 8)
	h := p.Get(0)
	require.False(t, h.IsNil())
	before := p.Remaining()

	assert.NoError(t, p.Free(Handle{}))
	assert.NoError(t, p.FreeISR(Handle{}))
	assert.NoError(t, p.RefInc(Handle{}))
	assert.Equal(t, before, p.Remaining())
	assert.Equal(t, uint64(0), p.Stats().Misuse)
}

func TestGet_ResetsBuffer(t *testing.T) {
	p, _ := newTestPool(t, 1, 8)
	h := p.Get(0)
	require.NoError(t, h.SetData([]byte("abc")))
	h.Header().Dst = 9
	require.NoError(t, p.Free(h))

	h2 := p.Get(0)
	require.False(t, h2.IsNil())
	assert.Equal(t, 0, h2.Len())
	assert.Equal(t, Header{}, *h2.Header())
	assert.NotEqual(t, h.Generation(), h2.Generation())
}

func TestClone_RoundTrip(t *testing.T) {
	p, _ := newTestPool(t, 4, 32)
	src := p.Get(0)
	require.NoError(t, src.SetData([]byte("payload-P")))
	src.Header().Src = 3
	src.Header().Dport = 10

	dup, err := p.Clone(src)
	require.NoError(t, err)
	require.False(t, dup.IsNil())
	assert.NotEqual(t, src.Index(), dup.Index())
	assert.Equal(t, []byte("payload-P"), dup.Data())
	assert.Equal(t, src.Len(), dup.Len())
	assert.Equal(t, *src.Header(), *dup.Header())
	assert.Equal(t, 1, dup.Refs())
	assert.Equal(t, 1, src.Refs())

	src.Data()[0] = 'X'
	assert.Equal(t, byte('p'), dup.Data()[0], "clone must not share payload")
	dup.Data()[1] = 'Y'
	assert.Equal(t, byte('a'), src.Data()[1])

	require.NoError(t, p.Free(src))
	assert.Equal(t, []byte("pYyload-P"), dup.Data())
	require.NoError(t, p.Free(dup))
	assert.Equal(t, 4, p.Remaining())
	assert.Equal(t, uint64(1), p.Stats().Clones)
}

func TestClone_Exhausted(t *testing.T) {
	p, _ := newTestPool(t, 1, 16)
	src := p.Get(0)
	require.NoError(t, src.SetData([]byte{1, 2, 3}))
	require.Equal(t, 0, p.Remaining())

	dup, err := p.Clone(src)
	require.NoError(t, err)
	assert.True(t, dup.IsNil())
	assert.Equal(t, []byte{1, 2, 3}, src.Data())
	assert.Equal(t, 3, src.Len())
	assert.Equal(t, 1, src.Refs())
}

func TestClone_FreedSource(t *testing.T) {
	p, _ := newTestPool(t, 2, 16)
	src := p.Get(0)
	require.NoError(t, p.Free(src))

	dup, err := p.Clone(src)
	assert.True(t, errors.Is(err, api.ErrDoubleFree))
	assert.True(t, dup.IsNil())
	assert.Equal(t, 2, p.Remaining())
}

func TestRefInc_FanOut(t *testing.T) {
	p, _ := newTestPool(t, 2, 16)
	h := p.Get(0)
	require.NoError(t, p.RefInc(h))
	assert.Equal(t, 2, h.Refs())
	start := p.Remaining()

	require.NoError(t, p.Free(h))
	assert.Equal(t, start, p.Remaining(), "first free must keep the buffer live")
	assert.True(t, h.Live())

	require.NoError(t, p.FreeISR(h))
	assert.Equal(t, start+1, p.Remaining())
	assert.False(t, h.Live())
}

func TestDoubleFree(t *testing.T) {
	p, hook := newTestPool(t, 2, 16)
	h := p.Get(0)
	require.NoError(t, p.Free(h))
	hook.Reset()

	err := p.Free(h)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrDoubleFree))
	assert.Equal(t, 2, p.Remaining(), "rejected free must not touch pool state")
	assert.Equal(t, uint64(1), p.Stats().Misuse)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	var ae *api.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, uint32(h.Index()), ae.Context["index"])
}

func TestRefIncAfterFree(t *testing.T) {
	p, _ := newTestPool(t, 2, 16)
	h := p.Get(0)
	require.NoError(t, p.Free(h))
	assert.True(t, errors.Is(p.RefInc(h), api.ErrDoubleFree))
	assert.Equal(t, 2, p.Remaining())
}

func TestRefInc_Overflow(t *testing.T) {
	p, _ := newTestPool(t, 1, 16)
	h := p.Get(0)
	s := &p.slots[h.idx]
	s.state.Store(packState(h.gen, maxRefs))

	err := p.RefInc(h)
	assert.True(t, errors.Is(err, api.ErrRefOverflow))
	_, refs := unpackState(s.state.Load())
	assert.Equal(t, maxRefs, refs, "rejected RefInc must not wrap the count")
}

func TestStaleHandle(t *testing.T) {
	p, _ := newTestPool(t, 1, 16)
	old := p.Get(0)
	require.NoError(t, p.Free(old))
	cur := p.Get(0)
	require.Equal(t, old.Index(), cur.Index())

	assert.True(t, errors.Is(p.Free(old), api.ErrStaleHandle))
	assert.True(t, errors.Is(p.RefInc(old), api.ErrStaleHandle))
	assert.Equal(t, 1, cur.Refs(), "stale calls must not change the new owner")
	assert.Equal(t, 0, old.Refs())
	assert.NoError(t, p.Free(cur))
}

func TestForeignHandle(t *testing.T) {
	a, _ := newTestPool(t, 1, 8)
	b, _ := newTestPool(t, 1, 8)
	h := a.Get(0)
	assert.True(t, errors.Is(b.Free(h), api.ErrForeignHandle))
	assert.True(t, errors.Is(b.RefInc(h), api.ErrForeignHandle))
	_, err := b.Clone(h)
	assert.True(t, errors.Is(err, api.ErrForeignHandle))
	assert.True(t, h.Live())
}

func TestStrictMode(t *testing.T) {
	p, _ := newTestPool(t, 1, 8, WithStrictMode())
	h := p.Get(0)
	require.NoError(t, p.Free(h))
	assert.Panics(t, func() { _ = p.Free(h) })
	assert.Panics(t, func() { _ = p.FreeISR(h) })
}

func TestISRMisuse_NoLogging(t *testing.T) {
	p, hook := newTestPool(t, 1, 8)
	h := p.GetISR(0)
	require.NoError(t, p.FreeISR(h))
	hook.Reset()

	err := p.FreeISR(h)
	assert.Same(t, api.ErrDoubleFree, err)
	assert.Empty(t, hook.AllEntries())
	assert.Equal(t, uint64(1), p.Stats().Misuse)
}

func TestContextGuards(t *testing.T) {
	lp := fake.NewLockProvider()
	p, _ := newTestPool(t, 2, 8, WithLockProvider(lp))

	h := p.GetISR(0)
	require.NoError(t, p.FreeISR(h))
	assert.Equal(t, int64(2), lp.ISRLck.Count())
	assert.Equal(t, int64(0), lp.TaskLck.Count())

	h = p.Get(0)
	require.NoError(t, p.RefInc(h))
	require.NoError(t, p.Free(h))
	assert.Equal(t, int64(1), lp.TaskLck.Count(), "non-final free must not enter the registry")
	require.NoError(t, p.Free(h))
	assert.Equal(t, int64(2), lp.TaskLck.Count())

	// cross-context: allocate in a task, release from an ISR
	h = p.Get(0)
	require.NoError(t, p.FreeISR(h))
	assert.Equal(t, int64(3), lp.TaskLck.Count())
	assert.Equal(t, int64(3), lp.ISRLck.Count())
	assert.Equal(t, 2, p.Remaining())
}

func TestConcurrentTaskAndISR(t *testing.T) {
	for mode, opts := range registryModes {
		t.Run(mode, func(t *testing.T) {
			const n = 4
			const iterations = 20000
			p, _ := newTestPool(t, n, 8, opts...)

			var owners [n]atomic.Int32
			var violations atomic.Int64
			var wg sync.WaitGroup

			worker := func(get func(int) Handle, free func(Handle) error) {
				defer wg.Done()
				for i := 0; i < iterations; i++ {
					h := get(0)
					if r := p.Remaining(); r < 0 || r > n {
						violations.Add(1)
					}
					if h.IsNil() {
						continue
					}
					if owners[h.Index()].Add(1) != 1 {
						violations.Add(1)
					}
					h.Payload()[0] = byte(i)
					if owners[h.Index()].Add(-1) != 0 {
						violations.Add(1)
					}
					if err := free(h); err != nil {
						violations.Add(1)
					}
				}
			}

			wg.Add(2)
			go worker(p.GetISR, p.FreeISR)
			go worker(p.Get, p.Free)
			wg.Wait()

			assert.Zero(t, violations.Load())
			assert.Equal(t, n, p.Remaining())
			st := p.Stats()
			assert.Equal(t, st.Allocs, st.Frees)
			assert.Zero(t, st.InUse)
			assert.LessOrEqual(t, st.HighWater, n)
		})
	}
}

func TestConcurrentSharing(t *testing.T) {
	p, _ := newTestPool(t, 8, 8)
	const consumers = 6
	var wg sync.WaitGroup

	for round := 0; round < 500; round++ {
		h := p.Get(0)
		require.False(t, h.IsNil())
		for i := 1; i < consumers; i++ {
			require.NoError(t, p.RefInc(h))
		}
		wg.Add(consumers)
		for i := 0; i < consumers; i++ {
			go func(isr bool) {
				defer wg.Done()
				if isr {
					assert.NoError(t, p.FreeISR(h))
				} else {
					assert.NoError(t, p.Free(h))
				}
			}(i%2 == 0)
		}
		wg.Wait()
		require.Equal(t, 8, p.Remaining())
	}
}

func TestStatsSnapshot(t *testing.T) {
	p, _ := newTestPool(t, 3, 64)
	a := p.Get(0)
	b := p.GetISR(0)
	_, err := p.Clone(a)
	require.NoError(t, err)
	require.NoError(t, p.Free(b))
	_ = p.Free(b)
	p.Get(0)
	p.Get(0)

	want := api.PoolStats{
		Capacity:  3,
		DataSize:  64,
		Remaining: 0,
		InUse:     3,
		HighWater: 3,
		Allocs:    4,
		Frees:     1,
		Clones:    1,
		Exhausted: 1,
		Misuse:    1,
	}
	if diff := cmp.Diff(want, p.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestGetFree_DoesNotAllocate(t *testing.T) {
	p, _ := newTestPool(t, 4, 64)
	allocs := testing.AllocsPerRun(1000, func() {
		h := p.Get(0)
		_ = p.RefInc(h)
		_ = p.Free(h)
		_ = p.FreeISR(h)
		h = p.GetISR(0)
		_ = p.FreeISR(h)
	})
	assert.Zero(t, allocs)
}
