// Package registry holds the two process-wide tables of the federated
// engine: remote-server records keyed by connection fingerprint and shared
// table descriptors keyed by local table name. Entries are reference counted
// and destroyed on last release; one global mutex serializes lookup, insert,
// delete and count updates, while per-entry mutexes guard the mutable
// caches.
package registry

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/kundb/go-federated/federated/internal/remote"
)

var global = struct {
	mu      sync.Mutex
	servers map[string]*Server
	shares  map[string]*Share
}{
	servers: map[string]*Server{},
	shares:  map[string]*Share{},
}

// serverKey builds the fingerprint of a remote server: the identifying
// fields joined with explicit terminators plus the binary port, so that no
// two distinct configurations collide and no two equal ones disagree.
func serverKey(cfg remote.Config) string {
	b := make([]byte, 0, 64)
	for _, f := range []string{cfg.Scheme, cfg.Host, cfg.Socket, cfg.User, cfg.Password, cfg.Database, cfg.Charset} {
		b = append(b, f...)
		b = append(b, 0)
	}
	b = binary.BigEndian.AppendUint16(b, uint16(cfg.Port))
	return string(b)
}

// AcquireServer returns the shared record of the remote server cfg points
// at, creating it on first use. The caller owns one reference.
func AcquireServer(cfg remote.Config) (*Server, error) {
	global.mu.Lock()
	defer global.mu.Unlock()
	return acquireServerLocked(cfg)
}

func acquireServerLocked(cfg remote.Config) (*Server, error) {
	key := serverKey(cfg)
	if srv, ok := global.servers[key]; ok {
		srv.useCount++
		return srv, nil
	}
	ept, err := remote.NewEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		key:      key,
		hash:     xxhash.Sum64String(key),
		ept:      ept,
		useCount: 1,
	}
	global.servers[key] = srv
	return srv, nil
}

// AcquireShareWithEndpoint registers a share around a prebuilt endpoint,
// bypassing endpoint construction. Test support.
func AcquireShareWithEndpoint(localKey string, ept *remote.Endpoint, remoteTable, baseSelect string) *Share {
	global.mu.Lock()
	defer global.mu.Unlock()
	if sh, ok := global.shares[localKey]; ok {
		sh.useCount++
		return sh
	}
	key := serverKey(ept.Config())
	srv, ok := global.servers[key]
	if ok {
		srv.useCount++
	} else {
		srv = &Server{key: key, hash: xxhash.Sum64String(key), ept: ept, useCount: 1}
		global.servers[key] = srv
	}
	sh := &Share{key: localKey, Server: srv, RemoteTable: remoteTable, BaseSelect: baseSelect, useCount: 1}
	global.shares[localKey] = sh
	return sh
}

// AcquireShare returns the shared descriptor of a local federated table,
// creating it - and its server record - on first open. The caller owns one
// reference.
func AcquireShare(localKey string, cfg remote.Config, remoteTable, baseSelect string) (*Share, error) {
	global.mu.Lock()
	defer global.mu.Unlock()
	if sh, ok := global.shares[localKey]; ok {
		sh.useCount++
		return sh, nil
	}
	srv, err := acquireServerLocked(cfg)
	if err != nil {
		return nil, err
	}
	sh := &Share{
		key:         localKey,
		Server:      srv,
		RemoteTable: remoteTable,
		BaseSelect:  baseSelect,
		useCount:    1,
	}
	global.shares[localKey] = sh
	return sh, nil
}
