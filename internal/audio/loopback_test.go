package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

func TestLoopback_ConvertsThroughADC(t *testing.T) {
	l := NewLoopback(1)

	require.NoError(t, l.Write([]dac.Sample{dac.Pack(0, false), dac.Pack(dac.MidScale, false), dac.Pack(dac.MaxValue, false)}))
	got := <-l.Samples()
	assert.Equal(t, []int16{0, dac.MidScale << 5, dac.MaxValue << 5}, got)
}

func TestLoopback_CloseUnblocksWriter(t *testing.T) {
	l := NewLoopback(0)

	errc := make(chan error, 1)
	go func() { errc <- l.Write([]dac.Sample{dac.Pack(1, false)}) }()

	select {
	case <-errc:
		t.Fatal("Write returned without a reader")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, l.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSinkClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Write")
	}
	assert.ErrorIs(t, l.Write(nil), ErrSinkClosed)
	require.NoError(t, l.Close())
}
