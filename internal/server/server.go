package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/delivery"
	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/forest-guardian/pdr-calculator/output"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

//go:embed index.html
var indexHTML string

//go:embed main.js
var mainJS string

const (
	maxRequestBody  = 4 << 20
	shutdownTimeout = 10 * time.Second
)

type Processor interface {
	ProcessArea(ctx context.Context, request delivery.Request, reporter delivery.Reporter) (*delivery.Result, error)
	LoadResult(id string) (*delivery.Result, error)
	ResultFile(id, name string) (string, error)
}

type Server struct {
	processor Processor
	log       logrus.FieldLogger
	router    *mux.Router
}

func New(processor Processor, log logrus.FieldLogger) *Server {
	s := &Server{processor: processor, log: log, router: mux.NewRouter()}
	s.router.Use(loggingMiddleware(log))
	s.router.HandleFunc("/", static(indexHTML, "text/html; charset=utf-8")).Methods(http.MethodGet)
	s.router.HandleFunc("/main.js", static(mainJS, "application/javascript")).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	s.router.HandleFunc("/api/process", s.process).Methods(http.MethodPost)
	s.router.HandleFunc("/api/results/{id}", s.result).Methods(http.MethodGet)
	s.router.HandleFunc("/files/{id}/{name}", s.file).Methods(http.MethodGet)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Listening")
		errCh <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

func static(str, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Add("Content-Type", contentType)
		io.WriteString(w, str)
	}
}

type processRequest struct {
	Geometry  json.RawMessage `json:"geometry"`
	Area      string          `json:"area,omitempty"`
	StartDate string          `json:"startDate,omitempty"`
	EndDate   string          `json:"endDate,omitempty"`
}

type processResponse struct {
	*delivery.Result
	PreviewURL string `json:"preview_url"`
	NoteURL    string `json:"note_url"`
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	var body processRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeError(w, HTTPError{Status: http.StatusBadRequest, Message: "invalid request body: " + err.Error()})
		return
	}
	request, err := body.toRequest()
	if err != nil {
		writeError(w, toHTTPError(err, http.StatusBadRequest))
		return
	}
	result, err := s.processor.ProcessArea(r.Context(), request, nil)
	if err != nil {
		writeError(w, toHTTPError(err, http.StatusBadGateway))
		return
	}
	writeJSON(w, http.StatusOK, newProcessResponse(result))
}

func (b processRequest) toRequest() (delivery.Request, error) {
	request := delivery.Request{Area: b.Area}
	if len(b.Geometry) == 0 || string(b.Geometry) == "null" {
		return request, geometry.ErrNoGeometry
	}
	roi, err := geometry.ParseROI(b.Geometry)
	if err != nil {
		return request, err
	}
	request.ROI = roi
	for _, date := range []struct {
		name  string
		value string
		dest  *time.Time
	}{
		{"startDate", b.StartDate, &request.StartDate},
		{"endDate", b.EndDate, &request.EndDate},
	} {
		if date.value == "" {
			continue
		}
		parsed, err := time.Parse(time.DateOnly, date.value)
		if err != nil {
			return request, HTTPError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid %s %q, expected YYYY-MM-DD", date.name, date.value)}
		}
		*date.dest = parsed
	}
	return request, nil
}

func newProcessResponse(result *delivery.Result) processResponse {
	return processResponse{
		Result:     result,
		PreviewURL: fileURL(result.ID, delivery.PreviewFileName),
		NoteURL:    fileURL(result.ID, output.DownloadNoteFileName),
	}
}

func fileURL(id, name string) string {
	return "/files/" + id + "/" + name
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	result, err := s.processor.LoadResult(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, toHTTPError(err, http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, newProcessResponse(result))
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path, err := s.processor.ResultFile(vars["id"], vars["name"])
	if err != nil {
		if errors.Is(err, delivery.ErrResultNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, toHTTPError(err, http.StatusInternalServerError))
		return
	}
	switch filepath.Ext(path) {
	case ".tif", ".csv", ".txt", ".geojson":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	}
	http.ServeFile(w, r, path)
}
