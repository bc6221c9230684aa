package nfsadapter

import (
	"context"
	"fmt"
	"net"

	gonfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"github.com/nimbuscore/sandboxcore/internal/vfs"
)

// Server is the NFS server child spec §4.I spawns: it binds host:port and
// speaks NFSv3 (with the mount protocol on the same port) over root.
type Server struct {
	listener net.Listener
	handler  gonfs.Handler
}

// Listen binds host:port and prepares (but does not yet run) the server.
func Listen(host string, port int, root vfs.VirtualFileSystem) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, err
	}

	billyFS := New(root)
	auth := nfshelper.NewNullAuthHandler(billyFS)
	cached := nfshelper.NewCachingHandler(auth, 1_000_000)
	return &Server{listener: listener, handler: cached}, nil
}

// Addr returns the bound address, once Listen has succeeded.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve blocks accepting NFSv3 connections until ctx is cancelled or the
// listener errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()
	return gonfs.Serve(s.listener, s.handler)
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }
