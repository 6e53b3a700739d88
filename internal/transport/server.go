// Package transport carries newline-delimited JSON messages between the
// daemon and interface clients over TCP. Connections register with the
// router as transient interfaces for exactly their own lifetime.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"

	"emp/internal/config"
	"emp/internal/logging"
	"emp/internal/message"
	"emp/internal/router"
)

// Server accepts interface connections and bridges them onto the router.
type Server struct {
	logger *slog.Logger
	cfg    *config.Config
	rt     *router.Router

	mu sync.Mutex
	ln net.Listener
}

// NewServer wires a listener against the router.
func NewServer(cfg *config.Config, rt *router.Router, logger *slog.Logger) *Server {
	return &Server{
		logger: logging.NewComponentLogger(logger, "transport"),
		cfg:    cfg,
		rt:     rt,
	}
}

// Start binds the configured address and begins accepting connections.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Daemon.Bind)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Daemon.Bind, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("listening", logging.String("addr", ln.Addr().String()))
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener. Established connections are torn down by the
// router's flush.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		netConn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", logging.Error(err))
			}
			return
		}
		if !s.peerAllowed(netConn.RemoteAddr()) {
			s.logger.Warn("connection refused by peer filter",
				logging.String("remote", netConn.RemoteAddr().String()))
			_ = netConn.Close()
			continue
		}
		go s.serveConn(netConn)
	}
}

// peerAllowed applies the connection filter: allow-all admits everyone,
// local-only admits loopback, otherwise the whitelist decides.
func (s *Server) peerAllowed(addr net.Addr) bool {
	if s.cfg.Daemon.AllowAll {
		return true
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip != nil && ip.IsLoopback() {
		return true
	}
	if s.cfg.Daemon.LocalOnly {
		return false
	}
	for _, allowed := range s.cfg.Daemon.Whitelist {
		if strings.TrimSpace(allowed) == host {
			return true
		}
	}
	return false
}

func (s *Server) serveConn(netConn net.Conn) {
	connID := uuid.NewString()
	logger := s.logger.With(logging.String("conn", connID))

	iface := &serverConn{conn: netConn}
	ifaceID := s.rt.RegisterInterface(iface)
	iface.id = ifaceID
	logger.Debug("interface connected",
		logging.String(logging.FieldAttachID, ifaceID),
		logging.String("remote", netConn.RemoteAddr().String()))

	// The greeting tells the client its assigned routing id.
	iface.HandleMessage(message.NewBase("welcome", "", ifaceID))

	scanner := bufio.NewScanner(netConn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := message.Decode(line)
		if err != nil {
			logger.Warn("unparseable message dropped", logging.Error(err))
			continue
		}
		s.rt.SendMsg(stampSource(msg, ifaceID))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("interface read ended", logging.Error(err))
	}

	s.rt.DeregisterInterface(ifaceID)
	_ = netConn.Close()
	logger.Debug("interface disconnected", logging.String(logging.FieldAttachID, ifaceID))
}

// stampSource overwrites the sender field so a client cannot speak for
// another routee.
func stampSource(msg message.Message, id string) message.Message {
	switch m := msg.(type) {
	case message.Base:
		m.From = id
		return m
	case message.Command:
		m.From = id
		return m
	case message.Alert:
		m.From = id
		return m
	case message.Error:
		m.From = id
		return m
	default:
		return msg
	}
}

// serverConn adapts one TCP connection to the router's Interface contract.
type serverConn struct {
	conn net.Conn
	id   string

	mu sync.Mutex
}

// HandleMessage writes one message as a JSON line. Write failures are
// swallowed; the read loop notices the broken connection and deregisters.
func (c *serverConn) HandleMessage(msg message.Message) {
	data, err := message.Encode(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.conn.Write(append(data, '\n'))
}

func (c *serverConn) Close() error {
	return c.conn.Close()
}
