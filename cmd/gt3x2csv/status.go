package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gt3x/internal/gt3x"
	"github.com/banshee-data/gt3x/internal/httputil"
)

// statusReport is the JSON body of /status.
type statusReport struct {
	State       string         `json:"state"` // converting | done | failed
	Input       string         `json:"input"`
	Serial      string         `json:"serial_number,omitempty"`
	SampleRate  float64        `json:"sample_rate,omitempty"`
	Records     int64          `json:"records"`
	Samples     int64          `json:"samples"`
	Rows        int64          `json:"rows"`
	FirstSample *time.Time     `json:"first_sample,omitempty"`
	LastSample  *time.Time     `json:"last_sample,omitempty"`
	Diagnostics map[string]int `json:"diagnostics"`
	RecordingID string         `json:"recording_id,omitempty"`
	Messages    int64          `json:"kafka_messages,omitempty"`
	Error       string         `json:"error,omitempty"`
	Summary     *summaryReport `json:"summary,omitempty"`
}

type summaryReport struct {
	MeanX      float64 `json:"mean_x"`
	MeanY      float64 `json:"mean_y"`
	MeanZ      float64 `json:"mean_z"`
	ENMO       float64 `json:"enmo"`
	ENMOMedian float64 `json:"enmo_median"`
	Epochs     int     `json:"epochs"`
}

// statusHandler serves the state of the conversion alongside /metrics.
// While converting it counts samples and diagnostics as they pass; records,
// rows and the summary arrive with finish.
type statusHandler struct {
	mu     sync.Mutex
	report statusReport
}

func newStatusHandler(input string) *statusHandler {
	return &statusHandler{report: statusReport{State: "converting", Input: input, Diagnostics: map[string]int{}}}
}

// WriteSample counts a sample that reached every output.
func (h *statusHandler) WriteSample(s gt3x.CalibratedSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report.Samples++
	ts := s.Timestamp
	if h.report.FirstSample == nil {
		first := ts
		h.report.FirstSample = &first
	}
	h.report.LastSample = &ts
	return nil
}

func (h *statusHandler) Close() error { return nil }

func (h *statusHandler) diagnostic(d gt3x.Diagnostic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report.Diagnostics[d.Kind.String()]++
}

// finish records the outcome of convert.
func (h *statusHandler) finish(res *result, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.report.State = "done"
	if err != nil {
		h.report.State = "failed"
		h.report.Error = err.Error()
	}
	if res == nil {
		return
	}
	h.report.Serial = res.Device.SerialNumber
	h.report.SampleRate = res.Device.SampleRate
	h.report.Records = res.Stats.Records
	h.report.Samples = res.Recording.TotalSamples
	h.report.Rows = res.Rows
	h.report.Messages = res.Messages
	if res.Stats.Samples > 0 {
		first, last := res.Stats.FirstSample, res.Stats.LastSample
		h.report.FirstSample, h.report.LastSample = &first, &last
	}
	for k, n := range res.Diagnostics.ByKind() {
		h.report.Diagnostics[k.String()] = n
	}
	if res.RecordingID != uuid.Nil {
		h.report.RecordingID = res.RecordingID.String()
	}
	if res.Summary.Samples > 0 {
		h.report.Summary = &summaryReport{
			MeanX:      res.Summary.X.Mean,
			MeanY:      res.Summary.Y.Mean,
			MeanZ:      res.Summary.Z.Mean,
			ENMO:       res.Summary.ENMO,
			ENMOMedian: res.Summary.ENMOMedian,
			Epochs:     len(res.Summary.Epochs),
		}
	}
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	h.mu.Lock()
	report := h.report
	report.Diagnostics = make(map[string]int, len(h.report.Diagnostics))
	for k, n := range h.report.Diagnostics {
		report.Diagnostics[k] = n
	}
	h.mu.Unlock()
	httputil.WriteJSONOK(w, report)
}
