package fieldmap

import "sync/atomic"

// Holder publishes the current registry. Discovery swaps in a rebuilt registry
// while imports and pushes keep reading the one they loaded.
type Holder struct {
	p atomic.Pointer[Registry]
}

func NewHolder(r *Registry) *Holder {
	h := &Holder{}
	if r != nil {
		h.p.Store(r)
	}
	return h
}

// Load returns the current registry, or an empty one before the first Store.
func (h *Holder) Load() *Registry {
	if r := h.p.Load(); r != nil {
		return r
	}
	empty, _ := NewRegistry(nil)
	return empty
}

func (h *Holder) Store(r *Registry) {
	h.p.Store(r)
}
