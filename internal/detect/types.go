package detect

// Detection is one bounding-box classification returned by the detection
// service. BBox is [x1, y1, x2, y2] in pixel space of the source frame.
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

// Statistics is the per-category breakdown computed by the service.
type Statistics struct {
	TotalItems int            `json:"total_items"`
	Categories map[string]int `json:"categories"`
}

// Result is the outcome of one detection call. Transport failures, timeouts
// and malformed responses are reported as Success=false with Error set; the
// caller never sees a Go error for a single failed frame.
type Result struct {
	Success             bool        `json:"success"`
	Detections          []Detection `json:"detections,omitempty"`
	Statistics          *Statistics `json:"statistics,omitempty"`
	AnnotatedImage      string      `json:"annotated_image,omitempty"`
	OriginalImage       string      `json:"original_image,omitempty"`
	ConfidenceThreshold float64     `json:"confidence_threshold,omitempty"`
	Error               string      `json:"error,omitempty"`
}

// request is the wire request shared by both endpoint variants.
type request struct {
	Image      string  `json:"image"`
	Confidence float64 `json:"confidence"`
}
