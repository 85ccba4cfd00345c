package web

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecosort/wastelens/internal/config"
	"github.com/ecosort/wastelens/internal/detect"
	"github.com/ecosort/wastelens/internal/logger"
	"github.com/ecosort/wastelens/internal/storage"
)

// newDetectionStub serves canned detection service responses.
func newDetectionStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func successStub(t *testing.T) *httptest.Server {
	return newDetectionStub(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/detect", "/detect_frame":
			annotated := base64.StdEncoding.EncodeToString([]byte("annotated jpeg"))
			json.NewEncoder(w).Encode(detect.Result{
				Success: true,
				Detections: []detect.Detection{
					{Class: "plastic", Confidence: 0.92, BBox: [4]float64{1, 2, 3, 4}},
					{Class: "metal", Confidence: 0.81, BBox: [4]float64{5, 6, 7, 8}},
					{Class: "plastic", Confidence: 0.55, BBox: [4]float64{9, 10, 11, 12}},
				},
				AnnotatedImage: "data:image/jpeg;base64," + annotated,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestServer(t *testing.T, detectionURL string) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Web.Enabled = true
	cfg.Detection.ServiceURL = detectionURL
	cfg.Detection.Timeout = 2 * time.Second
	cfg.Uploads.Dir = filepath.Join(t.TempDir(), "uploads")

	log := logger.NewNopLogger()
	client := detect.NewClient(detect.ClientConfig{
		ServiceURL:          detectionURL,
		Timeout:             cfg.Detection.Timeout,
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
	}, log)

	uploads, err := storage.NewUploadStore(storage.UploadConfig{
		Dir:               cfg.Uploads.Dir,
		AllowedExtensions: cfg.Uploads.AllowedExtensions,
	}, log)
	require.NoError(t, err)

	s := NewServer(cfg, client, uploads, log)
	t.Cleanup(func() { s.session.Stop() })
	return s
}

func doJSON(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func multipartUpload(t *testing.T, filename string, content []byte, confidence string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if confidence != "" {
		require.NoError(t, writer.WriteField("confidence", confidence))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestHandleHealth(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	w := doJSON(s, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["detection_service_ready"])
}

func TestHandleHealth_ServiceDown(t *testing.T) {
	stub := newDetectionStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	s := newTestServer(t, stub.URL)

	w := doJSON(s, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["detection_service_ready"])
}

func TestDetectUpload_Success(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	buf, contentType := multipartUpload(t, "bin.jpg", []byte("jpeg bytes"), "0.4")
	req := httptest.NewRequest(http.MethodPost, "/api/detect", buf)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["original_image"], "/static/uploads/")
	assert.Contains(t, body["detected_image"], "/static/uploads/detected_")
	assert.Equal(t, 0.4, body["confidence_threshold"])

	statistics := body["statistics"].(map[string]interface{})
	assert.Equal(t, float64(3), statistics["total_items"])
	categories := statistics["categories"].(map[string]interface{})
	assert.Equal(t, float64(2), categories["plastic"])
	assert.Equal(t, float64(1), categories["metal"])

	// Both the original and the annotated image landed on disk
	entries, err := os.ReadDir(s.uploads.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDetectUpload_NoFile(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	buf, contentType := multipartUpload(t, "", nil, "")
	req := httptest.NewRequest(http.MethodPost, "/api/detect", buf)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No file uploaded", body["error"])
}

func TestDetectUpload_InvalidType(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	buf, contentType := multipartUpload(t, "malware.exe", []byte("nope"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/detect", buf)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["error"], "Invalid file type")
}

func TestDetectUpload_ServiceFailureCleansUp(t *testing.T) {
	stub := newDetectionStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(detect.Result{Success: false, Error: "model not loaded"})
	})
	s := newTestServer(t, stub.URL)

	buf, contentType := multipartUpload(t, "bin.png", []byte("png bytes"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/detect", buf)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body["error"], "model not loaded")

	// The stored upload was removed on failure
	entries, err := os.ReadDir(s.uploads.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func frameRequest(data []byte, confidence float64) map[string]interface{} {
	return map[string]interface{}{
		"image":      "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
		"confidence": confidence,
	}
}

func TestCameraFlow(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	// Start
	w := doJSON(s, http.MethodPost, "/api/camera/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "active", body["state"])
	assert.NotEmpty(t, body["session_id"])

	// Push a frame
	w = doJSON(s, http.MethodPost, "/api/camera/frame", frameRequest([]byte("frame"), 0.3))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["accepted"])

	// Manual capture
	w = doJSON(s, http.MethodPost, "/api/camera/capture", map[string]interface{}{})
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	statistics := body["statistics"].(map[string]interface{})
	assert.Equal(t, float64(3), statistics["total_items"])

	// Stats reflect the capture
	w = doJSON(s, http.MethodGet, "/api/camera/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "active", body["state"])
	statistics = body["statistics"].(map[string]interface{})
	assert.Equal(t, float64(3), statistics["total_items"])

	// Live mode toggle
	w = doJSON(s, http.MethodPost, "/api/camera/live", map[string]interface{}{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "live_detecting", decodeBody(t, w)["state"])

	// Stop
	w = doJSON(s, http.MethodPost, "/api/camera/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decodeBody(t, w)["state"])
}

func TestCameraLive_RequiresSession(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	w := doJSON(s, http.MethodPost, "/api/camera/live", map[string]interface{}{"enabled": true})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestCameraFrame_RequiresSession(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	w := doJSON(s, http.MethodPost, "/api/camera/frame", frameRequest([]byte("frame"), 0))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "not started")
}

func TestCameraFrame_BadPayload(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	doJSON(s, http.MethodPost, "/api/camera/start", nil)

	w := doJSON(s, http.MethodPost, "/api/camera/frame", map[string]interface{}{
		"image": "data:image/jpeg;base64,%%%not-base64%%%",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCameraCapture_NoFrame(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	doJSON(s, http.MethodPost, "/api/camera/start", nil)

	w := doJSON(s, http.MethodPost, "/api/camera/capture", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "No frame available")
}

func TestCameraStart_ReplacesPriorSession(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	w := doJSON(s, http.MethodPost, "/api/camera/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decodeBody(t, w)["session_id"]

	// Starting again releases the prior device holder
	w = doJSON(s, http.MethodPost, "/api/camera/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first, decodeBody(t, w)["session_id"])
	assert.Equal(t, "active", decodeBody(t, w)["state"])
}

func TestUnknownRoute(t *testing.T) {
	stub := successStub(t)
	s := newTestServer(t, stub.URL)

	w := doJSON(s, http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Endpoint not found", decodeBody(t, w)["error"])
}
