package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the decoder metrics. It is separate from the default
// registry so embedding programs do not get them unasked.
var Registry = prometheus.NewRegistry()

var (
	recordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gt3x",
		Subsystem: "decoder",
		Name:      "records_total",
		Help:      "Number of log.bin records framed, by record type.",
	}, []string{"record_type"})

	samplesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gt3x",
		Subsystem: "decoder",
		Name:      "samples_total",
		Help:      "Number of activity samples decoded, by payload encoding.",
	}, []string{"encoding"})

	diagnosticsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gt3x",
		Subsystem: "decoder",
		Name:      "diagnostics_total",
		Help:      "Number of non-fatal decode diagnostics, by kind.",
	}, []string{"kind"})

	filesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gt3x",
		Subsystem: "decoder",
		Name:      "files_total",
		Help:      "Number of files decoded, by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(recordsCounter, samplesCounter, diagnosticsCounter, filesCounter)
}

// RecordRecord counts one framed record.
func RecordRecord(recordType string) {
	recordsCounter.WithLabelValues(recordType).Inc()
}

// RecordSamples counts n decoded samples.
func RecordSamples(encoding string, n int) {
	if n <= 0 {
		return
	}
	samplesCounter.WithLabelValues(encoding).Add(float64(n))
}

// RecordDiagnostic counts one non-fatal diagnostic.
func RecordDiagnostic(kind string) {
	diagnosticsCounter.WithLabelValues(kind).Inc()
}

// RecordFile counts a finished decode; result is "ok" or "error".
func RecordFile(result string) {
	filesCounter.WithLabelValues(result).Inc()
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
