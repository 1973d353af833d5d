package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/refscan"
)

// Server fans run events out to presentation clients. It only serves
// loopback peers.
type Server struct {
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]chan []byte
	report   []byte
}

func NewServer(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		log:      logger,
		sessions: map[string]chan []byte{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

// PublishReport stores rep as the latest report and sends it to every
// subscriber.
func (s *Server) PublishReport(rep protocol.Report) error {
	rep.Type = protocol.TypeReport
	rep.ProtocolVersion = protocol.Version
	b, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.report = b
	s.mu.Unlock()
	s.broadcast(b)
	return nil
}

func (s *Server) PublishProgress(msg protocol.ScanProgressMsg) {
	msg.Type = protocol.TypeScanProgress
	msg.ProtocolVersion = protocol.Version
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.broadcast(b)
}

// Progress adapts the scanner callback. It sends one event per `every`
// finished jobs and one for the last job.
func (s *Server) Progress(runID string, every int) refscan.ProgressFunc {
	if every <= 0 {
		every = 1
	}
	return func(done, total, refs int) {
		if done%every != 0 && done != total {
			return
		}
		s.PublishProgress(protocol.ScanProgressMsg{RunID: runID, Done: done, Total: total, References: refs})
	}
}

func (s *Server) broadcast(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, ch := range s.sessions {
		select {
		case ch <- b:
		default:
			s.log.Printf("observer %s: queue full, dropping event", sid)
		}
	}
}

func (s *Server) join() (string, chan []byte, []byte) {
	sid := fmt.Sprintf("O%d", s.nextID.Add(1))
	ch := make(chan []byte, 256)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sid] = ch
	return sid, ch, s.report
}

func (s *Server) leave(sid string) {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
}

// Sessions returns the number of connected subscribers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) ReportHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		b := s.report
		s.mu.Unlock()
		if b == nil {
			http.Error(rw, "no report yet", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(b)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid, out, last := s.join()
		defer s.leave(sid)
		s.log.Printf("observer %s joined from %s", sid, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. A late subscriber gets the latest report first.
		writeErr := make(chan error, 1)
		go func() {
			if last != nil {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, last); err != nil {
					writeErr <- err
					return
				}
			}
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: only keeps the connection alive and notices close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
