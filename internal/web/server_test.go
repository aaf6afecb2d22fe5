package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomviz/pkg/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.UploadDir = filepath.Join(dir, "uploads")
	cfg.Server.ResultsDir = filepath.Join(dir, "results")

	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	return srv
}

// multipartUpload builds a files[] multipart body from name/content
// pairs.
func multipartUpload(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files[]", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadStoresValidFiles(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, map[string][]byte{
		"slice1.dcm": []byte("dicom-a"),
		"slice2.IMA": []byte("dicom-b"),
		"notes.txt":  []byte("skip me"),
	})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		UploadID  string `json:"upload_id"`
		FileCount int    `json:"file_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.UploadID)
	assert.Equal(t, 2, resp.FileCount)

	entries, err := os.ReadDir(filepath.Join(srv.cfg.Server.UploadDir, resp.UploadID))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestUploadRejectsEmptyRequest(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejectsAllInvalidExtensions(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, map[string][]byte{
		"script.sh": []byte("#!/bin/sh"),
	})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The per-request directory must not be left behind.
	entries, err := os.ReadDir(srv.cfg.Server.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func postJSON(t *testing.T, srv *Server, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestProcessRejectsMissingUploadID(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/process", map[string]string{"view_type": "2d"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessRejectsMalformedUploadID(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/process", map[string]string{
		"upload_id": "../../etc",
		"view_type": "2d",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessRejectsUnknownUpload(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/process", map[string]string{
		"upload_id": "0f6d4c1e-9b1e-4b5e-8c2a-111111111111",
		"view_type": "2d",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessRejectsUnknownViewType(t *testing.T) {
	srv := newTestServer(t)

	// Store a real upload so validation reaches the view type check.
	body, contentType := multipartUpload(t, map[string][]byte{"a.dcm": []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UploadID string `json:"upload_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = postJSON(t, srv, "/process", map[string]string{
		"upload_id": resp.UploadID,
		"view_type": "4d",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcess3DRelaysStdoutOnly(t *testing.T) {
	srv := newTestServer(t)

	// The pipeline logs to stderr even on success; only stdout may end
	// up in the response body or the JSON is unparseable.
	script := filepath.Join(t.TempDir(), "fake-dicomviz")
	cloudJSON := `{"points":[[1,1,1]],"colors":[[0.9,0.3,0.3]],"dimensions":[2,2,2]}`
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\n"+
			"echo 'INFO loaded slices count=4' >&2\n"+
			"echo '"+cloudJSON+"'\n"), 0755))
	srv.binPath = script

	body, contentType := multipartUpload(t, map[string][]byte{"a.dcm": []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var upload struct {
		UploadID string `json:"upload_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))

	rec = postJSON(t, srv, "/process_3d", map[string]string{"upload_id": upload.UploadID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var cloud struct {
		Points [][3]int     `json:"points"`
		Colors [][3]float64 `json:"colors"`
		Dims   [3]int       `json:"dimensions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cloud))
	assert.Equal(t, [][3]int{{1, 1, 1}}, cloud.Points)
	assert.Equal(t, [3]int{2, 2, 2}, cloud.Dims)
}

func TestStaticResultsServing(t *testing.T) {
	srv := newTestServer(t)

	content := []byte("png-bytes")
	require.NoError(t, os.WriteFile(filepath.Join(srv.cfg.Server.ResultsDir, "x_slice_view.png"), content, 0644))

	req := httptest.NewRequest(http.MethodGet, "/static/results/x_slice_view.png", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
}
