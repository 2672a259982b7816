// internal/dma/chain.go
package dma

// Chain is a linked list of descriptors held in an Arena.
type Chain struct {
	arena *Arena
	nodes []int
}

// BuildChain links ceil(total/perDescriptor) descriptors that each replay
// the same source buffer into dst. Every node moves perDescriptor samples
// except the last, which carries the remainder and is the only node with
// the terminal count interrupt flag.
func BuildChain(arena *Arena, src, dst uint32, total, perDescriptor int) (*Chain, error) {
	if total <= 0 || perDescriptor <= 0 || perDescriptor > MaxTransferSize {
		return nil, ErrInvalidCount
	}

	full := total / perDescriptor
	extra := total - full*perDescriptor
	n := full
	if extra > 0 {
		n++
	}

	idx, err := arena.alloc(n)
	if err != nil {
		return nil, err
	}

	for i, node := range idx {
		count := perDescriptor
		last := i == n-1
		var next uint32
		if last {
			if extra > 0 {
				count = extra
			}
		} else {
			next = arena.Addr(idx[i+1])
		}
		arena.set(node, Descriptor{
			Src:     src,
			Dst:     dst,
			Next:    next,
			Control: NewControl(count, last),
		})
	}

	return &Chain{arena: arena, nodes: idx}, nil
}

// Len returns the number of descriptors in the chain.
func (c *Chain) Len() int {
	return len(c.nodes)
}

// Head returns the bus address of the first descriptor.
func (c *Chain) Head() uint32 {
	return c.arena.Addr(c.nodes[0])
}

// Descriptors returns a copy of the chain in link order.
func (c *Chain) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.nodes))
	for _, i := range c.nodes {
		d, _ := c.arena.Lookup(c.arena.Addr(i))
		out = append(out, d)
	}
	return out
}

// Total returns the number of samples the chain moves.
func (c *Chain) Total() int {
	var n int
	for _, d := range c.Descriptors() {
		n += d.Control.TransferSize()
	}
	return n
}

// Registers returns the channel registers that start the chain: the head
// descriptor is loaded directly and LLI points at its successor.
func (c *Chain) Registers() Registers {
	head, _ := c.arena.Lookup(c.Head())
	return Registers{
		Src:     head.Src,
		Dst:     head.Dst,
		LLI:     head.Next,
		Control: head.Control,
		Config:  ChannelConfig,
	}
}

// Free returns the chain's descriptors to the arena.
func (c *Chain) Free() {
	c.arena.release(c.nodes)
	c.nodes = nil
}
