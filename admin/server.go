// Copyright (C) 2025 ssb-solar
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ssb-solar/solar/health"
	"github.com/ssb-solar/solar/internal/logger"
	"github.com/ssb-solar/solar/node"
)

// Server is the JSON-RPC-over-HTTP administration surface for a
// running Node, plus a /stream websocket live tail.
type Server struct {
	node       *node.Node
	jwtSecret  []byte
	log        logger.Logger
	httpServer *http.Server
	health     *health.HealthChecker
}

// NewServer builds a Server over n. jwtSecretEnv names an environment
// variable holding the HMAC secret that gates the publish method; an
// empty name (or an unset/empty env var) leaves publish open, matching
// the bare protocol demo's default.
func NewServer(n *node.Node, jwtSecretEnv string, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	var secret []byte
	if jwtSecretEnv != "" {
		if v := os.Getenv(jwtSecretEnv); v != "" {
			secret = []byte(v)
		}
	}

	checker := health.NewHealthChecker(5 * time.Second)
	checker.SetLogger(log)
	checker.RegisterCheck("peers", health.PeerConnectivityHealthCheck(0, func() int {
		return len(n.Peers())
	}))

	return &Server{node: n, jwtSecret: secret, log: log, health: checker}
}

// RegisterHealthCheck adds an extra named check (e.g. the replication
// policy's backing store) to this server's /healthz report.
func (s *Server) RegisterHealthCheck(name string, check health.HealthCheck) {
	s.health.RegisterCheck(name, check)
}

// Start begins serving on addr (typically ":3030") and returns once
// the listener is ready. Serving itself runs in a background
// goroutine; call Shutdown to stop it.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/stream", s.streamHandler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin: listen: %w", err)
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin server stopped", logger.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type rpcRequest struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

type rpcResponse struct {
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, fmt.Errorf("admin: bad request body: %w", err))
		return
	}

	if req.Method == "publish" {
		if err := authenticatePublish(r, s.jwtSecret); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			writeRPCError(w, err)
			return
		}
	}

	result, err := dispatch(s.node, req.Method, req.Args)
	if err != nil {
		writeRPCError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{Result: result})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	sys := s.health.GetSystemHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if sys.Status != health.StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(sys)
}

func writeRPCError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: 1, Message: err.Error()}})
}
