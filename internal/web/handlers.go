package web

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ecosort/wastelens/internal/capture"
	"github.com/ecosort/wastelens/internal/session"
	"github.com/ecosort/wastelens/internal/stats"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleHealth reports server health and detection service readiness.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ready := s.detector.Ready(ctx) == nil

	status := "healthy"
	if !ready {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                  status,
		"detection_service_ready": ready,
		"upload_folder":           s.uploads.Dir(),
		"uptime_seconds":          int64(time.Since(s.startTime).Seconds()),
	})
}

// handleDetectUpload handles a single uploaded image: validate, store, run
// the upload detection variant, persist the annotated result.
func (s *Server) handleDetectUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Uploads.MaxFileSizeBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.fail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf(
				"File is too large. Maximum size is %dMB", s.config.Uploads.MaxFileSizeBytes>>20))
			return
		}
		s.fail(c, http.StatusBadRequest, "No file uploaded")
		return
	}

	if fileHeader.Filename == "" {
		s.fail(c, http.StatusBadRequest, "No file selected")
		return
	}

	if !s.uploads.Allowed(fileHeader.Filename) {
		exts := s.uploads.AllowedExtensions()
		sort.Strings(exts)
		s.fail(c, http.StatusBadRequest, "Invalid file type. Allowed types: "+strings.Join(exts, ", "))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Failed to open uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	confidence := s.parseConfidence(c.PostForm("confidence"))

	storedName, err := s.uploads.SaveUpload(fileHeader.Filename, data)
	if err != nil {
		s.logger.Error("Failed to store upload", "error", err)
		s.fail(c, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	// A static upload is a one-frame capture source.
	source := capture.NewStillSource(data, confidence)
	frame, err := source.NextFrame()
	if err != nil {
		s.uploads.Remove(storedName)
		s.fail(c, http.StatusInternalServerError, "Failed to read frame from upload")
		return
	}

	result := s.detector.DetectImage(c.Request.Context(), frame)
	if !result.Success {
		// Clean up the stored file, nothing useful came back
		s.uploads.Remove(storedName)
		s.fail(c, http.StatusInternalServerError, "Detection failed: "+result.Error)
		return
	}

	response := gin.H{
		"success":              true,
		"original_image":       "/static/uploads/" + storedName,
		"detections":           result.Detections,
		"statistics":           stats.Aggregate(result.Detections),
		"confidence_threshold": confidence,
	}

	if result.AnnotatedImage != "" {
		annotated, err := decodeImagePayload(result.AnnotatedImage)
		if err != nil {
			s.logger.Warn("Failed to decode annotated image", "error", err)
		} else if annotatedName, err := s.uploads.SaveAnnotated(storedName, annotated); err == nil {
			response["detected_image"] = "/static/uploads/" + annotatedName
		}
	}

	c.JSON(http.StatusOK, response)
}

// handleCameraStart acquires the capture device for a new session. A prior
// session holding the device is stopped first.
func (s *Server) handleCameraStart(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.State() != session.StateIdle {
		s.session.Stop()
	}

	source := capture.NewStreamSource()
	if err := s.session.Start(source); err != nil {
		s.fail(c, http.StatusConflict, "Failed to start camera session: "+err.Error())
		return
	}
	s.source = source

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": s.session.ID(),
		"state":      s.session.State().String(),
	})
}

// handleCameraStop stops the running session and releases the device.
func (s *Server) handleCameraStop(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.Stop()
	s.source = nil

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   s.session.State().String(),
	})
}

// handleCameraLive toggles continuous detection.
func (s *Server) handleCameraLive(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	if err := s.session.SetLiveMode(req.Enabled); err != nil {
		s.fail(c, http.StatusConflict, "Cannot toggle live mode: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   s.session.State().String(),
	})
}

// handleCameraFrame ingests one live frame from the browser camera. The
// frame is buffered latest-wins; the scheduler decides when to submit it.
func (s *Server) handleCameraFrame(c *gin.Context) {
	var req struct {
		Image      string  `json:"image"`
		Confidence float64 `json:"confidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		s.fail(c, http.StatusBadRequest, "No image data provided")
		return
	}

	data, err := decodeImagePayload(req.Image)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "Failed to decode image")
		return
	}

	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	if source == nil {
		s.fail(c, http.StatusConflict, "Camera session not started")
		return
	}

	accepted := source.Push(&capture.Frame{
		Data:       data,
		Timestamp:  time.Now(),
		Confidence: s.parseConfidenceValue(req.Confidence),
	})

	c.JSON(http.StatusAccepted, gin.H{
		"success":  true,
		"accepted": accepted,
	})
}

// handleCameraCapture performs a manual single-shot detection on the most
// recent frame. Unlike live-mode failures, a failure here is returned to the
// caller directly.
func (s *Server) handleCameraCapture(c *gin.Context) {
	var req struct {
		Image      string  `json:"image"`
		Confidence float64 `json:"confidence"`
	}
	// Body is optional: a capture may use the last pushed frame
	if err := c.ShouldBindJSON(&req); err == nil && req.Image != "" {
		data, err := decodeImagePayload(req.Image)
		if err != nil {
			s.fail(c, http.StatusBadRequest, "Failed to decode image")
			return
		}

		s.mu.Lock()
		source := s.source
		s.mu.Unlock()
		if source == nil {
			s.fail(c, http.StatusConflict, "Camera session not started")
			return
		}
		source.Push(&capture.Frame{
			Data:       data,
			Timestamp:  time.Now(),
			Confidence: s.parseConfidenceValue(req.Confidence),
		})
	}

	result, err := s.session.CaptureOnce(c.Request.Context())
	switch {
	case errors.Is(err, session.ErrBusy):
		s.fail(c, http.StatusConflict, "Detection in flight, try again")
		return
	case errors.Is(err, session.ErrNotActive):
		s.fail(c, http.StatusConflict, "Camera session not started")
		return
	case errors.Is(err, session.ErrNoFrame):
		s.fail(c, http.StatusBadRequest, "No frame available")
		return
	case err != nil:
		s.fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	if !result.Success {
		s.fail(c, http.StatusInternalServerError, "Frame detection failed: "+result.Error)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"annotated_image": result.AnnotatedImage,
		"detections":      result.Detections,
		"statistics":      stats.Aggregate(result.Detections),
	})
}

// handleCameraStats returns the current session state and snapshot.
func (s *Server) handleCameraStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"state":      s.session.State().String(),
		"pending":    s.session.Pending(),
		"statistics": s.session.Snapshot(),
	})
}

// handleWebsocket upgrades the connection and streams session events until
// the client goes away.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// fail writes the JSON error envelope shared by all endpoints.
func (s *Server) fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}

// parseConfidence parses a form confidence value, falling back to the
// configured default.
func (s *Server) parseConfidence(raw string) float64 {
	if raw == "" {
		return s.config.Detection.ConfidenceThreshold
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return s.config.Detection.ConfidenceThreshold
	}
	return s.parseConfidenceValue(value)
}

// parseConfidenceValue clamps a confidence value into [0,1], falling back to
// the configured default when unset.
func (s *Server) parseConfidenceValue(value float64) float64 {
	if value <= 0 || value > 1 {
		return s.config.Detection.ConfidenceThreshold
	}
	return value
}

// decodeImagePayload decodes a base64 image payload, stripping a data URL
// prefix ("data:image/jpeg;base64,...") when present.
func decodeImagePayload(payload string) ([]byte, error) {
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	return data, nil
}
