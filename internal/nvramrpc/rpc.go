// Package nvramrpc exposes a kv.Store over net/rpc: a small struct
// holding the store, one method per operation, and a StartRPC helper
// that registers, listens, and returns a cleanup func.
//
// kv.Store itself is single-threaded by design (see the package doc on
// record.Log); this is the one place in this module that serializes
// access to a kv.Store with a mutex, since RPC requests can arrive concurrently even though nothing below
// this layer may be touched concurrently.
package nvramrpc

import (
	"errors"
	"net"
	"net/rpc"
	"sync"

	"github.com/google/pblog/kv"
)

// ErrNotFound is returned by Get when the requested key has no live
// value: either never set, or tombstoned by Unset.
var ErrNotFound = errors.New("nvramrpc: key not found")

// Server adapts a kv.Store to net/rpc, serializing every call with its
// own mutex.
type Server struct {
	mu    sync.Mutex
	store *kv.Store
}

// GetArgs are the arguments to Server.Get.
type GetArgs struct {
	Key string
}

// SetArgs are the arguments to Server.Set.
type SetArgs struct {
	Key   string
	Value []byte
}

// UnsetArgs are the arguments to Server.Unset.
type UnsetArgs struct {
	Key string
}

// Get looks up a key, returning ErrNotFound if it has no live value.
func (s *Server) Get(args *GetArgs, reply *[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok, err := s.store.Lookup(args.Key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	*reply = entry.Value
	return nil
}

// Set stores a value for a key.
func (s *Server) Set(args *SetArgs, _ *struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Set(args.Key, args.Value)
}

// Unset tombstones a key.
func (s *Server) Unset(args *UnsetArgs, _ *struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Unset(args.Key)
}

// List returns every live key/value pair.
func (s *Server) List(_ *struct{}, reply *[]kv.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.List()
	if err != nil {
		return err
	}
	*reply = entries
	return nil
}

// StartRPC registers store under the name "NVRAM", listens on addr, and
// serves in the background. It returns the actual listen address and a
// cleanup func that stops accepting new connections.
func StartRPC(store *kv.Store, addr string) (listenAddr string, cleanup func(), err error) {
	server := &Server{store: store}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("NVRAM", server); err != nil {
		return "", nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	go rpcServer.Accept(listener)

	cleanup = func() {
		_ = listener.Close()
	}
	return listener.Addr().String(), cleanup, nil
}
