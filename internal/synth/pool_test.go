package synth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestPool(t *testing.T, slots, capacity int) *Pool {
	t.Helper()
	p, err := NewPool(PoolConfig{Slots: slots, Capacity: capacity})
	require.NoError(t, err)
	return p
}

func TestNewPool_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     PoolConfig
		wantErr error
	}{
		{"valid", PoolConfig{Slots: 3, Capacity: 256}, nil},
		{"no slots", PoolConfig{Slots: 0, Capacity: 256}, ErrInvalidPoolSize},
		{"zero capacity", PoolConfig{Slots: 3, Capacity: 0}, ErrInvalidCapacity},
		{"capacity over transfer size", PoolConfig{Slots: 3, Capacity: 4096}, ErrInvalidCapacity},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewPool(tc.cfg)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultPoolBase, p.Config().Base)
		})
	}
}

func TestPool_Addresses(t *testing.T) {
	p := newTestPool(t, 3, 256)
	for i := 0; i < 3; i++ {
		s, ok := p.TryAcquire()
		require.True(t, ok)
		assert.Equal(t, i, s.Index)
		assert.Equal(t, DefaultPoolBase+uint32(i)*1024, s.Addr)
		assert.Len(t, s.Samples, 256)
	}
	_, ok := p.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, 3, p.InUse())
}

func TestPool_Lifecycle(t *testing.T) {
	p := newTestPool(t, 2, 16)

	s, ok := p.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, SlotFilling, p.State(s.Index))

	err := p.Release(s.Addr)
	assert.ErrorIs(t, err, ErrSlotNotQueued)

	require.NoError(t, p.Submit(s))
	assert.Equal(t, SlotQueued, p.State(s.Index))
	assert.ErrorIs(t, p.Submit(s), ErrSlotNotFilling)

	require.NoError(t, p.Release(s.Addr))
	assert.Equal(t, SlotFree, p.State(s.Index))
	assert.Equal(t, 0, p.InUse())
}

func TestPool_ReleaseUnknownAddress(t *testing.T) {
	p := newTestPool(t, 2, 16)

	testCases := []struct {
		name string
		addr uint32
	}{
		{"below base", DefaultPoolBase - 4},
		{"misaligned", DefaultPoolBase + 4},
		{"past last slot", DefaultPoolBase + 2*64},
		{"zero", 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Release(tc.addr)
			assert.ErrorIs(t, err, ErrUnknownAddress)
			assert.Contains(t, err.Error(), "unable to free buffer at address")
		})
	}
	assert.Equal(t, 0, p.InUse())
}

func TestPool_AcquireBlocksUntilRelease(t *testing.T) {
	p := newTestPool(t, 2, 16)

	var held []*Slot
	for i := 0; i < 2; i++ {
		s, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.NoError(t, p.Submit(s))
		held = append(held, s)
	}

	got := make(chan *Slot, 1)
	go func() {
		s, err := p.Acquire(context.Background())
		if err == nil {
			got <- s
		}
	}()

	select {
	case <-got:
		t.Fatal("Acquire returned while every slot was queued")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Release(held[1].Addr))

	select {
	case s := <-got:
		assert.Equal(t, held[1].Addr, s.Addr)
		assert.Equal(t, SlotFilling, p.State(s.Index))
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after release")
	}
}

func TestPool_AcquireCancelled(t *testing.T) {
	p := newTestPool(t, 1, 16)
	_, ok := p.TryAcquire()
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_Reset(t *testing.T) {
	p := newTestPool(t, 1, 16)
	s, _ := p.TryAcquire()
	require.NoError(t, p.Reset(s))
	assert.Equal(t, 0, p.InUse())
	assert.ErrorIs(t, p.Reset(s), ErrSlotNotFilling)
}

func TestPool_ReadSamples(t *testing.T) {
	p := newTestPool(t, 2, 8)
	s, _ := p.TryAcquire()
	for i := range s.Samples {
		s.Samples[i] = 0x40 * 3
	}

	_, err := p.ReadSamples(s.Addr, 8)
	assert.ErrorIs(t, err, ErrUnknownAddress, "filling slots are not readable")

	require.NoError(t, p.Submit(s))
	got, err := p.ReadSamples(s.Addr, 8)
	require.NoError(t, err)
	assert.Equal(t, s.Samples, got)

	got[0] = 0
	assert.NotEqual(t, got[0], s.Samples[0], "ReadSamples must copy")

	_, err = p.ReadSamples(s.Addr, 9)
	assert.ErrorIs(t, err, ErrUnknownAddress)
}

func TestSlotState_String(t *testing.T) {
	assert.Equal(t, "free", SlotFree.String())
	assert.Equal(t, "filling", SlotFilling.String())
	assert.Equal(t, "queued", SlotQueued.String())
	assert.Equal(t, "SlotState(9)", SlotState(9).String())
}

func TestPool_OwnershipProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		slots := rapid.IntRange(1, 5).Draw(t, "slots")
		p, err := NewPool(PoolConfig{Slots: slots, Capacity: 4})
		if err != nil {
			t.Fatal(err)
		}

		var filling, queued []*Slot
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				if s, ok := p.TryAcquire(); ok {
					filling = append(filling, s)
				} else if len(filling)+len(queued) != slots {
					t.Fatalf("TryAcquire failed with %d of %d slots in use", len(filling)+len(queued), slots)
				}
			case 1:
				if len(filling) == 0 {
					continue
				}
				s := filling[0]
				filling = filling[1:]
				if err := p.Submit(s); err != nil {
					t.Fatal(err)
				}
				queued = append(queued, s)
			case 2:
				if len(queued) == 0 {
					continue
				}
				k := rapid.IntRange(0, len(queued)-1).Draw(t, "release")
				if err := p.Release(queued[k].Addr); err != nil {
					t.Fatal(err)
				}
				queued = append(queued[:k], queued[k+1:]...)
			}

			if p.InUse() > slots {
				t.Fatalf("InUse %d exceeds pool size %d", p.InUse(), slots)
			}
			if p.InUse() != len(filling)+len(queued) {
				t.Fatalf("InUse %d, model %d", p.InUse(), len(filling)+len(queued))
			}
		}
	})
}
