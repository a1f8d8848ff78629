package visualization

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/fipsim/internal/models"
	"github.com/nvandessel/fipsim/internal/store"
)

// Server serves a stored run as an HTML frame log plus a small JSON/DOT API.
type Server struct {
	store      store.TraceStore
	runID      string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a trace viewer for the run with the given id or prefix.
func NewServer(ts store.TraceStore, runID string) *Server {
	return &Server{store: ts, runID: runID}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/frames", s.handleFrames)
	mux.HandleFunc("GET /api/frames/{seq}", s.handleFrame)
	return mux
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type frameEntry struct {
	Seq  int
	Step string
	Text string
}

type pageData struct {
	Run        *store.Run
	Frames     []frameEntry
	APIBaseURL string
}

// RenderHTML renders the frame log page for a run.
func RenderHTML(run *store.Run, frames []models.Snapshot, apiBaseURL string) ([]byte, error) {
	tmplBytes, err := templates.ReadFile("templates/trace.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("trace").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	data := pageData{Run: run, APIBaseURL: apiBaseURL}
	for _, f := range frames {
		data.Frames = append(data.Frames, frameEntry{Seq: f.Seq, Step: f.Step, Text: RenderText(f)})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), s.runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	frames, err := s.store.Frames(r.Context(), run.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	html, err := RenderHTML(run, frames, "http://"+s.Addr())
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	frames, err := s.store.Frames(r.Context(), s.runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := RenderTrace(w, frames, FormatJSON); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		http.Error(w, "invalid frame number", http.StatusBadRequest)
		return
	}
	format := FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		if format, err = ParseFormat(q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	snap, err := s.store.Frame(r.Context(), s.runID, seq)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	switch format {
	case FormatDOT:
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
		w.Write([]byte(RenderDOT(*snap)))
	case FormatText:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(RenderText(*snap)))
	default:
		data, err := RenderJSON(*snap)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrAmbiguous):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
