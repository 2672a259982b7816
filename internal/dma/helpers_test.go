package dma

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

const testBufferBase uint32 = 0x2007C000

// testMemory maps buffer base addresses to sample slices
type testMemory struct {
	buffers map[uint32][]dac.Sample
}

func newTestMemory(buffers ...[]dac.Sample) *testMemory {
	m := &testMemory{buffers: make(map[uint32][]dac.Sample)}
	for i, b := range buffers {
		m.buffers[testBufferBase+uint32(i)*0x400] = b
	}
	return m
}

func (m *testMemory) ReadSamples(addr uint32, n int) ([]dac.Sample, error) {
	b, ok := m.buffers[addr]
	if !ok || n > len(b) {
		return nil, fmt.Errorf("%#08x: %w", addr, ErrBadAddress)
	}
	return b[:n], nil
}

// recordSink collects everything written to the DAC
type recordSink struct {
	mu      sync.Mutex
	samples []dac.Sample
	writes  int
}

func (s *recordSink) Write(samples []dac.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, samples...)
	s.writes++
	return nil
}

func (s *recordSink) snapshot() ([]dac.Sample, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dac.Sample(nil), s.samples...), s.writes
}

func ramp(n int) []dac.Sample {
	out := make([]dac.Sample, n)
	for i := range out {
		out[i] = dac.Pack(uint16(i%dac.MaxValue), false)
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}
