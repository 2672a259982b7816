// internal/dma/arena.go
package dma

import "sync"

// Arena is a fixed-capacity descriptor store with stable bus addresses.
// Chains are carved out of it so the transfer path never allocates.
type Arena struct {
	mu    sync.Mutex
	base  uint32
	nodes []Descriptor
	used  []bool
	free  int
}

// NewArena creates an arena of capacity descriptors starting at base.
func NewArena(base uint32, capacity int) *Arena {
	return &Arena{
		base:  base,
		nodes: make([]Descriptor, capacity),
		used:  make([]bool, capacity),
		free:  capacity,
	}
}

// Capacity returns the number of descriptors the arena holds.
func (a *Arena) Capacity() int {
	return len(a.nodes)
}

// Available returns the number of unused descriptors.
func (a *Arena) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free
}

// alloc reserves n descriptors and returns their indices.
func (a *Arena) alloc(n int) ([]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n > a.free {
		return nil, ErrChainTooLong
	}
	idx := make([]int, 0, n)
	for i := range a.used {
		if len(idx) == n {
			break
		}
		if !a.used[i] {
			a.used[i] = true
			idx = append(idx, i)
		}
	}
	a.free -= n
	return idx, nil
}

func (a *Arena) set(i int, d Descriptor) {
	a.mu.Lock()
	a.nodes[i] = d
	a.mu.Unlock()
}

func (a *Arena) release(idx []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, i := range idx {
		if a.used[i] {
			a.used[i] = false
			a.nodes[i] = Descriptor{}
			a.free++
		}
	}
}

// Addr returns the bus address of descriptor i.
func (a *Arena) Addr(i int) uint32 {
	return a.base + uint32(i)*descriptorSize
}

// Lookup returns the in-use descriptor stored at addr.
func (a *Arena) Lookup(addr uint32) (Descriptor, bool) {
	if addr < a.base || (addr-a.base)%descriptorSize != 0 {
		return Descriptor{}, false
	}
	i := int((addr - a.base) / descriptorSize)
	a.mu.Lock()
	defer a.mu.Unlock()
	if i >= len(a.nodes) || !a.used[i] {
		return Descriptor{}, false
	}
	return a.nodes[i], true
}
