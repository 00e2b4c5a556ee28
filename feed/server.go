// Package feed serves the tick stream to remote displays over a websocket, plus a JSON snapshot of the
// playback state.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/gruntwork-io/go-commons/errors"
	"github.com/robmorgan/clicktrack/logger"
	"github.com/robmorgan/clicktrack/rhythm"
	"github.com/robmorgan/clicktrack/scheduler"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 2 * time.Second

// Source is what the feed reads from, usually a *metronome.Engine.
type Source interface {
	State() rhythm.Snapshot
	Subscribe() *scheduler.Listener
	Unsubscribe(l *scheduler.Listener)
}

// Server exposes a Source over HTTP.
type Server struct {
	source   Source
	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewServer creates a Server with routes:
//
//	GET /state  the current rhythm.Snapshot as JSON
//	GET /ticks  a websocket streaming every scheduler.TickEvent as JSON
func NewServer(source Source) *Server {
	s := &Server{
		source: source,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	s.router.HandleFunc("/ticks", s.handleTicks).Methods(http.MethodGet)
	return s
}

// Handler returns the HTTP handler for the feed routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.GetProjectLogger().WithField("addr", addr).Info("Tick feed listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WithStackTrace(err)
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.State()); err != nil {
		logger.GetProjectLogger().WithError(err).Warn("Failed to write state")
	}
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	log := logger.GetProjectLogger().WithFields(logrus.Fields{"remote": r.RemoteAddr})

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	l := s.source.Subscribe()
	defer s.source.Unsubscribe(l)
	log.Debug("Tick feed client connected")

	// the client sends nothing; reading only surfaces the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			log.Debug("Tick feed client disconnected")
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-l.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("Tick feed write failed")
				return
			}
		}
	}
}
