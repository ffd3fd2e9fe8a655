package op

import "sync"

// token 0 through 1024 are reserved for the driver's own internal
// bookkeeping SQEs (the drain marker, the unparker's read, cancellation and
// close-fd fire-and-forget entries); real operations are always issued
// tokens above that range, matching the reserved-range check the driver's
// drain loop uses to route a CQE to either its own internal handling or to
// this registry.
const firstUserToken uint64 = 1025

var (
	registryMu   sync.Mutex
	registryMap  = make(map[uint64]*Header)
	nextToken    = firstUserToken
)

func register(h *Header) uint64 {
	registryMu.Lock()
	defer registryMu.Unlock()
	t := nextToken
	nextToken++
	registryMap[t] = h
	return t
}

func unregister(token uint64) {
	registryMu.Lock()
	delete(registryMap, token)
	registryMu.Unlock()
}

// Lookup returns the Header registered under token, if any. Used by the
// driver's drain loop to route a CQE to the operation that submitted it.
func Lookup(token uint64) (*Header, bool) {
	registryMu.Lock()
	h, ok := registryMap[token]
	registryMu.Unlock()
	return h, ok
}
