// Package vizserver implements the VIZ debug flag (spec.md §6): a local
// HTTP+WebSocket server that streams graph-rewrite snapshots (pre-rewrite
// sink, post-fold sink, final kernel groups) to a browser client for
// visualization, mirroring tinygrad's own browser-based VIZ tool.
//
// Grounded on the teacher's internal/network websocket server (a
// mutex-guarded client set with a broadcast-to-all method over
// gorilla/websocket); this package keeps that shape but drops the
// teacher's multi-server registry (this process only ever runs one VIZ
// server per scheduling call) and adds golang.org/x/sync/errgroup to
// coordinate the listener goroutine against the caller's shutdown, since
// the scheduler itself must stay synchronous (spec.md §5) while this
// ambient server runs concurrently with it.
package vizserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Snapshot is one graph-rewrite stage sent to connected viewers: a named
// stage ("pre-rewrite", "post-fold", "kernel-groups", ...) plus a
// pretty-printed dump of the graph at that point.
type Snapshot struct {
	Stage string `json:"stage"`
	Dump  string `json:"dump"`
}

// Server is the VIZ flag's websocket broadcaster. The zero value is not
// usable; call New.
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	history   []Snapshot
	historyMu sync.Mutex

	httpSrv *http.Server
}

// New builds a Server listening on addr (e.g. ":7775"). It does not start
// listening until Serve is called.
func New(addr string) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Serve runs the HTTP server until ctx is cancelled, using an errgroup to
// join the listener goroutine with a graceful shutdown triggered by ctx
// -- the VIZ server's only point of concurrency; the scheduling call
// itself remains single-threaded per spec.md §5.
func (s *Server) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.httpSrv.Shutdown(context.Background())
	})
	return g.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	s.historyMu.Lock()
	backlog := append([]Snapshot(nil), s.history...)
	s.historyMu.Unlock()
	for _, snap := range backlog {
		if sendErr := s.send(conn, snap); sendErr != nil {
			break
		}
	}

	// A viewer never sends anything meaningful back; drain reads so the
	// connection's close is detected and the client map stays accurate.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Capture records snap in the replay history and broadcasts it to every
// connected viewer, mirroring the teacher's WebSocketBroadcast pattern:
// iterate a snapshot of the client set under a read lock, drop any
// client whose write fails.
func (s *Server) Capture(snap Snapshot) {
	s.historyMu.Lock()
	s.history = append(s.history, snap)
	s.historyMu.Unlock()

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	var dead []*websocket.Conn
	for _, c := range conns {
		if err := s.send(c, snap); err != nil {
			dead = append(dead, c)
		}
	}
	if len(dead) == 0 {
		return
	}
	s.mu.Lock()
	for _, c := range dead {
		delete(s.clients, c)
	}
	s.mu.Unlock()
}
