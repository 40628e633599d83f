package conn

import "sync/atomic"

// Owner arbitrates a network medium shared by several clients. Only the
// holder may drive the medium's bring-up.
type Owner struct {
	holder atomic.Uint64
}

var ownerIDs atomic.Uint64

// NewOwnerID returns a process unique non-zero identity for Acquire.
func NewOwnerID() uint64 { return ownerIDs.Add(1) }

// Acquire takes the token for id. It reports true when id already holds
// it or the token was free.
func (o *Owner) Acquire(id uint64) bool {
	if o == nil {
		return true
	}
	return o.holder.CompareAndSwap(0, id) || o.holder.Load() == id
}

// Release frees the token if id holds it.
func (o *Owner) Release(id uint64) {
	if o == nil {
		return
	}
	o.holder.CompareAndSwap(id, 0)
}

// Holder returns the current holder, zero when free.
func (o *Owner) Holder() uint64 {
	if o == nil {
		return 0
	}
	return o.holder.Load()
}
