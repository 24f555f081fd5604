package dsn

import "sync"

// The server catalog holds connection descriptors registered under a plain
// name, mirroring local CREATE SERVER definitions. A connection string that
// is a bare name (optionally with "/<table>") resolves through it.

var catalog = struct {
	mu      sync.RWMutex
	servers map[string]ConnInfo
}{servers: map[string]ConnInfo{}}

// RegisterServer registers or replaces a named server definition.
func RegisterServer(name string, ci ConnInfo) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	catalog.servers[name] = ci
}

// DropServer removes a named server definition.
func DropServer(name string) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	delete(catalog.servers, name)
}

func lookupServer(name string) (ConnInfo, bool) {
	catalog.mu.RLock()
	defer catalog.mu.RUnlock()
	ci, ok := catalog.servers[name]
	return ci, ok
}
