package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/markup/pkg/fragments"
	"github.com/CTAG07/markup/pkg/templating"
)

// streamParam is the query parameter that switches a page to streamed output.
const streamParam = "stream"

type Server struct {
	config *Config
	logger *slog.Logger
	tm     *templating.TemplateManager
	store  *fragments.Store
	mux    *http.ServeMux
}

func NewServer(config *Config, logger *slog.Logger, tm *templating.TemplateManager, store *fragments.Store) *Server {
	server := &Server{
		config: config,
		logger: logger,
		tm:     tm,
		store:  store,
		mux:    http.NewServeMux(),
	}

	server.mux.HandleFunc("GET /api/health", server.handleHealthCheck)
	server.mux.HandleFunc("POST /api/templates/refresh", server.handleRefreshTemplates)
	server.mux.HandleFunc("GET /api/templates", server.handleListTemplates)
	server.mux.HandleFunc("GET /api/fragments", server.handleListFragments)
	server.mux.HandleFunc("GET /favicon.ico", handleFavicon)
	server.mux.HandleFunc("GET /", server.handlePage)

	return server
}

// ServeHTTP makes the Server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   Version,
		"templates": len(s.tm.GetTemplateNames()),
	})
}

func (s *Server) handleRefreshTemplates(w http.ResponseWriter, _ *http.Request) {
	if err := s.tm.Refresh(); err != nil {
		s.logger.Error("Failed to refresh templates", "error", err)
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string][]string{"templates": s.tm.GetTemplateNames()})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string][]string{"templates": s.tm.GetTemplateNames()})
}

func (s *Server) handleListFragments(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list fragments", "error", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list fragments")
		return
	}
	if names == nil {
		names = []string{}
	}
	respondWithJSON(w, http.StatusOK, map[string][]string{"fragments": names})
}

// handlePage renders the template named by the request path, using the query
// parameters as data. The root path serves the default template.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	requested := strings.Trim(r.URL.Path, "/")
	if requested == "" {
		requested = s.config.Server.DefaultTemplate
	}
	name, ok := s.tm.ResolveName(requested)
	if !ok {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	data := queryData(query)

	if s.config.Server.EnableStreaming && query.Get(streamParam) == "1" {
		s.logger.Debug("Streaming page", "template", name, "remote_addr", r.RemoteAddr)
		s.setPageHeaders(w)
		cw := &countingWriter{ResponseWriter: w}
		if err := s.tm.Stream(r.Context(), cw, name, data); err != nil {
			s.logger.Error("Failed to stream template", "template", name, "error", err, "written", cw.n)
			// Once the head is out the status is already sent.
			if cw.n == 0 {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}
		return
	}

	var buf bytes.Buffer
	if err := s.tm.Execute(r.Context(), &buf, name, data); err != nil {
		s.logger.Error("Failed to execute template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.logger.Info("Serving page", "template", name, "remote_addr", r.RemoteAddr, "bytes", buf.Len())
	s.setPageHeaders(w)
	_, _ = buf.WriteTo(w)
}

func (s *Server) setPageHeaders(w http.ResponseWriter) {
	for k, v := range s.config.Server.Headers {
		w.Header().Set(k, v)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
}

// countingWriter records how many bytes reached the client and flushes after
// every chunk when the underlying writer supports it.
type countingWriter struct {
	http.ResponseWriter
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// queryData turns query parameters into template data. A key given once maps
// to its string value; a repeated key maps to all of its values.
func queryData(query map[string][]string) map[string]any {
	data := make(map[string]any, len(query))
	for k, v := range query {
		if k == streamParam {
			continue
		}
		if len(v) == 1 {
			data[k] = v[0]
		} else {
			data[k] = v
		}
	}
	return data
}

// handleFavicon returns no content so browsers don't trigger a template lookup.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			fmt.Printf("ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
