package dma

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewControl_BitLayout(t *testing.T) {
	testCases := []struct {
		name      string
		count     int
		interrupt bool
		want      uint32
	}{
		{"256 with interrupt", 256, true, 0x100 | 2<<18 | 2<<21 | 1<<26 | 1<<31},
		{"232 without interrupt", 232, false, 232 | 2<<18 | 2<<21 | 1<<26},
		{"max", MaxTransferSize, false, 0xFFF | 2<<18 | 2<<21 | 1<<26},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewControl(tc.count, tc.interrupt)
			assert.Equal(t, tc.want, uint32(c))
			assert.Equal(t, tc.count, c.TransferSize())
			assert.Equal(t, tc.interrupt, c.Interrupt())
			assert.True(t, c.SrcIncrement())
			assert.Equal(t, WidthWord, c.SrcWidth())
			assert.Zero(t, uint32(c)&CtrlDstIncrement)
		})
	}
}

func TestChannelConfig(t *testing.T) {
	assert.Equal(t, uint32(0x89C1), ChannelConfig)
}
