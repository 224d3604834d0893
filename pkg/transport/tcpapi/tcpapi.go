// Package tcpapi exposes the same line-oriented protocol the original
// driveboard backend spoke over a raw TCP socket, for clients that
// can't speak HTTP.
package tcpapi

import (
	"bufio"
	"context"
	"net"

	"go.uber.org/zap"
)

// Frontend is the line-processing surface tcpapi drives.
type Frontend interface {
	ProcessLine(line string) string
}

// Server accepts one client connection at a time on a TCP listener and
// runs each line it receives through a Frontend, writing back the
// response terminated with a newline.
type Server struct {
	frontend Frontend
	log      *zap.Logger
}

// New creates a Server. A nil logger uses zap.NewNop.
func New(frontend Frontend, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{frontend: frontend, log: log}
}

// Serve accepts connections on ln until ctx is canceled. Each
// connection is handled sequentially; a second connection is accepted
// only after the first closes, matching the single-connection
// assumption of the rest of the engine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		resp := s.frontend.ProcessLine(scanner.Text())
		if resp == "" {
			continue
		}
		if _, err := conn.Write([]byte(resp + "\n")); err != nil {
			s.log.Warn("tcpapi write failed", zap.Error(err))
			return
		}
	}
}
