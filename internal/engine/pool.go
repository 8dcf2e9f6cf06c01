package engine

import (
	"fmt"

	"github.com/scriptbox/scriptbox/internal/core"
)

// vmPool manages a fixed-size pool of pre-warmed VMs. Checked-out VMs are
// owned exclusively by the borrower until returned.
type vmPool struct {
	vms  chan core.JSRuntime
	size int
}

// newVMPool creates size VMs using the factory. On any failure the VMs
// already created are closed before the error is returned.
func newVMPool(size int, cfg core.Config, factory core.RuntimeFactory) (*vmPool, error) {
	pool := &vmPool{
		vms:  make(chan core.JSRuntime, size),
		size: size,
	}

	for i := 0; i < size; i++ {
		rt, err := factory(cfg)
		if err != nil {
			pool.dispose()
			return nil, fmt.Errorf("creating pool vm %d: %w", i, err)
		}
		pool.vms <- rt
	}

	return pool, nil
}

// get acquires a VM. Blocks until one is available.
func (p *vmPool) get() core.JSRuntime {
	return <-p.vms
}

// put returns a VM to the pool.
func (p *vmPool) put(rt core.JSRuntime) {
	select {
	case p.vms <- rt:
	default:
		// Pool full (shouldn't happen), close the VM.
		rt.Close()
	}
}

// all drains the pool, acquiring every VM. Used for broadcast operations
// (load, global mirroring). The caller must return each VM with put.
// Broadcasts are serialized by the engine so two callers never deadlock
// waiting on each other's VMs.
func (p *vmPool) all() []core.JSRuntime {
	vms := make([]core.JSRuntime, p.size)
	for i := range vms {
		vms[i] = <-p.vms
	}
	return vms
}

// dispose closes all pooled VMs. VMs still checked out are closed by their
// borrowers.
func (p *vmPool) dispose() {
	for {
		select {
		case rt := <-p.vms:
			rt.Close()
		default:
			return
		}
	}
}
