// Package monitor provides a live progress server for long conversions.
// Integrations (print servers, slicer plugins) can watch a run over a
// WebSocket or poll the JSON snapshot endpoint.
//
// Copyright (C) 2026  Arc Welder Go Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package monitor

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"arc-welder-go/pkg/errors"
	"arc-welder-go/pkg/log"
	"arc-welder-go/pkg/welder"
)

// Server publishes welder progress over HTTP and WebSocket.
type Server struct {
	addr   string
	logger *log.Logger

	httpServer *http.Server
	listener   net.Listener

	wsUpgrader websocket.Upgrader
	clients    map[int64]*wsClient
	clientMu   sync.RWMutex
	nextID     int64

	latest   welder.Progress
	hasData  bool
	latestMu sync.RWMutex

	running atomic.Bool
}

// New creates a monitor server listening on addr (e.g. ":8888").
func New(addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.GetLogger("monitor")
	}
	return &Server{
		addr:    addr,
		logger:  logger,
		clients: make(map[int64]*wsClient),
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The monitor is a localhost diagnostics endpoint.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.MonitorListenError(s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/progress", s.handleProgress)
	mux.HandleFunc("/websocket", s.handleWebSocket)

	s.httpServer = &http.Server{Handler: mux}
	s.running.Store(true)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("monitor server: %v", err)
		}
	}()

	s.logger.Info("Progress monitor listening on %s", ln.Addr())
	return nil
}

// Stop shuts the server down and disconnects all clients.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.clientMu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[int64]*wsClient)
	s.clientMu.Unlock()
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

// Addr returns the bound listen address, useful when addr was ":0".
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Publish records the latest progress snapshot and pushes it to every
// connected WebSocket client. Safe to call from a welder progress callback.
func (s *Server) Publish(p welder.Progress) {
	s.latestMu.Lock()
	s.latest = p
	s.hasData = true
	s.latestMu.Unlock()

	s.clientMu.RLock()
	for _, c := range s.clients {
		c.send(p)
	}
	s.clientMu.RUnlock()
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.latestMu.RLock()
	p, ok := s.latest, s.hasData
	s.latestMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(p)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("monitor: websocket upgrade failed: %v", err)
		return
	}

	c := &wsClient{
		id:     atomic.AddInt64(&s.nextID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan welder.Progress, 16),
		done:   make(chan struct{}),
	}

	s.clientMu.Lock()
	s.clients[c.id] = c
	s.clientMu.Unlock()

	// Greet with the latest snapshot so late joiners see state at once.
	s.latestMu.RLock()
	if s.hasData {
		c.send(s.latest)
	}
	s.latestMu.RUnlock()

	go c.writePump()
	go c.readPump()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientMu.Lock()
	delete(s.clients, c.id)
	s.clientMu.Unlock()
}

// wsClient is one WebSocket subscriber.
type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan welder.Progress
	done   chan struct{}
	once   sync.Once
}

func (c *wsClient) send(p welder.Progress) {
	select {
	case c.sendCh <- p:
	case <-c.done:
	default:
		// Channel full; the next snapshot supersedes this one anyway.
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump discards client messages; the protocol is push-only. It exists
// to notice closed connections promptly.
func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()
	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Debug("monitor: websocket read error: %v", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case p := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(p); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
