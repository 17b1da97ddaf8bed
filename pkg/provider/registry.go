package provider

// Registry holds the compile-time list of registered adapters. Order is
// significant: the selector and recommend() break ties by registration
// order.
type Registry struct {
	adapters []Adapter
	order    map[Kind]int
}

// NewRegistry builds a Registry from an ordered list of adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	order := make(map[Kind]int, len(adapters))
	for i, a := range adapters {
		order[a.Kind()] = i
	}
	return &Registry{adapters: adapters, order: order}
}

// Get returns the adapter registered for kind, if any.
func (r *Registry) Get(kind Kind) (Adapter, bool) {
	for _, a := range r.adapters {
		if a.Kind() == kind {
			return a, true
		}
	}
	return nil, false
}

// All returns every registered adapter, in registration order.
func (r *Registry) All() []Adapter {
	return r.adapters
}

// RegistrationOrder returns the index at which kind was registered, or -1
// if it is not registered. Used to break scoring ties deterministically.
func (r *Registry) RegistrationOrder(kind Kind) int {
	if i, ok := r.order[kind]; ok {
		return i
	}
	return -1
}
