package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/pdr-calculator/internal/delivery"
	"github.com/forest-guardian/pdr-calculator/internal/geometry"
	"github.com/forest-guardian/pdr-calculator/internal/sentinel"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "6f1c2f8e-3a51-4a55-9a39-0f4f3b2a1c11"

const polygon = `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[90,23],[90.2,23],[90.2,23.2],[90,23.2],[90,23]]]}}`

type fakeProcessor struct {
	request delivery.Request
	err     error
	dir     string
}

func (f *fakeProcessor) ProcessArea(ctx context.Context, request delivery.Request, reporter delivery.Reporter) (*delivery.Result, error) {
	f.request = request
	if f.err != nil {
		return nil, f.err
	}
	return &delivery.Result{
		ID:          testID,
		Scene:       sentinel.Scene{ID: "S2B_1", CloudCover: 1.5},
		Bounds:      [4]float64{90, 23, 90.2, 23.2},
		DownloadURL: "http://localhost:8080/files/" + testID + "/pdr.tif",
	}, nil
}

func (f *fakeProcessor) LoadResult(id string) (*delivery.Result, error) {
	if id != testID {
		return nil, delivery.ErrResultNotFound
	}
	return &delivery.Result{ID: testID}, nil
}

func (f *fakeProcessor) ResultFile(id, name string) (string, error) {
	path := filepath.Join(f.dir, name)
	if id != testID {
		return "", delivery.ErrResultNotFound
	}
	if _, err := os.Stat(path); err != nil {
		return "", delivery.ErrResultNotFound
	}
	return path, nil
}

func newTestServer(t *testing.T, processor *fakeProcessor) (*Server, *test.Hook) {
	logger, hook := test.NewNullLogger()
	if processor.dir == "" {
		processor.dir = t.TempDir()
	}
	return New(processor, logger), hook
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestIndexAndHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeProcessor{})

	rec := do(s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Process Selected Area")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = do(s, http.MethodGet, "/main.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[23.7, 90.4], 7")
	assert.Contains(t, rec.Body.String(), "pdr_output_url.txt")

	rec = do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, "OK", rec.Body.String())
}

func TestProcess(t *testing.T) {
	processor := &fakeProcessor{}
	s, _ := newTestServer(t, processor)

	body := fmt.Sprintf(`{"geometry":%s,"startDate":"2023-03-01","endDate":"2023-06-30"}`, polygon)
	rec := do(s, http.MethodPost, "/api/process", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, testID, response["id"])
	assert.Equal(t, "/files/"+testID+"/pdr.png", response["preview_url"])
	assert.Equal(t, "/files/"+testID+"/pdr_output_url.txt", response["note_url"])
	assert.Equal(t, "http://localhost:8080/files/"+testID+"/pdr.tif", response["download_url"])

	require.NotNil(t, processor.request.ROI)
	assert.True(t, processor.request.ROI.Contains(90.15, 23.05))
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), processor.request.StartDate)
	assert.Equal(t, time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), processor.request.EndDate)
}

func TestProcess_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{name: "malformed body", body: `{`, status: http.StatusBadRequest},
		{name: "no geometry", body: `{}`, status: http.StatusBadRequest, message: "Please draw a polygon on the map first."},
		{name: "empty collection", body: `{"geometry":{"type":"FeatureCollection","features":[]}}`, status: http.StatusBadRequest, message: "Please draw a polygon on the map first."},
		{name: "bad date", body: `{"geometry":` + polygon + `,"startDate":"01/02/2023"}`, status: http.StatusBadRequest, message: "invalid startDate"},
		{name: "date range", body: `{"geometry":` + polygon + `}`, err: delivery.ErrInvalidDateRange, status: http.StatusBadRequest},
		{name: "no scene", body: `{"geometry":` + polygon + `}`, err: fmt.Errorf("search: %w", sentinel.ErrNoScene), status: http.StatusNotFound},
		{name: "remote status", body: `{"geometry":` + polygon + `}`, err: sentinel.StatusError{Status: 500, Body: []byte("boom")}, status: http.StatusBadGateway},
		{name: "remote failure", body: `{"geometry":` + polygon + `}`, err: errors.New("failed to request after 10 attempts"), status: http.StatusBadGateway},
		{name: "timeout", body: `{"geometry":` + polygon + `}`, err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeProcessor{err: tt.err})
			rec := do(s, http.MethodPost, "/api/process", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var response map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Contains(t, response["error"], tt.message)
		})
	}
}

func TestProcess_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, &fakeProcessor{})
	rec := do(s, http.MethodGet, "/api/process", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestResult(t *testing.T) {
	s, _ := newTestServer(t, &fakeProcessor{})

	rec := do(s, http.MethodGet, "/api/results/"+testID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"preview_url":"/files/`+testID+`/pdr.png"`)

	rec = do(s, http.MethodGet, "/api/results/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFile(t *testing.T) {
	processor := &fakeProcessor{dir: t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(processor.dir, "pdr_output_url.txt"), []byte("Download the file from:\nhttp://x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(processor.dir, "pdr.png"), []byte("png"), 0o644))
	s, _ := newTestServer(t, processor)

	rec := do(s, http.MethodGet, "/files/"+testID+"/pdr_output_url.txt", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Download the file from:\nhttp://x", rec.Body.String())
	assert.Equal(t, `attachment; filename="pdr_output_url.txt"`, rec.Header().Get("Content-Disposition"))

	rec = do(s, http.MethodGet, "/files/"+testID+"/pdr.png", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))

	rec = do(s, http.MethodGet, "/files/"+testID+"/missing.tif", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	s, hook := newTestServer(t, &fakeProcessor{})
	hook.Reset()

	do(s, http.MethodPost, "/api/process", `{}`)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, http.StatusBadRequest, entry.Data["status"])
	assert.Contains(t, entry.Data["body"], "Please draw a polygon")
}

func TestToHTTPError_InvalidGeometry(t *testing.T) {
	_, err := geometry.ParseROI([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,1],[0,0]]]}`))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, toHTTPError(err, http.StatusInternalServerError).Status)
}
