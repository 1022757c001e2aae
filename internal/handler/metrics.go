package handler

import (
	"net/http"

	"github.com/keenchase/edit-business/internal/metrics"
)

// NewMetricsHandler exposes the recorder. Prometheus recorders serve the
// text exposition format and in-memory recorders serve a JSON snapshot.
func NewMetricsHandler(recorder metrics.Recorder) http.Handler {
	switch rec := recorder.(type) {
	case interface{ Handler() http.Handler }:
		return rec.Handler()
	case metrics.Snapshotter:
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, rec.Snapshot())
		})
	default:
		return http.HandlerFunc(New().NotFound)
	}
}
