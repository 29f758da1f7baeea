package grader

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var metricsOnce sync.Once

var (
	uploadedFiles   prometheus.Counter
	uploadedBytes   prometheus.Counter
	rubricChanges   *prometheus.CounterVec
	submissions     prometheus.Counter
	reportsRendered prometheus.Counter
)

func registerCounter(c prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
	}
	return c
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func initMetrics() {
	metricsOnce.Do(func() {
		uploadedFiles = registerCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "uploaded_files_total",
			Help:      "Scripts accepted by the upload endpoint.",
		}))
		uploadedBytes = registerCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of PDF accepted by the upload endpoint.",
		}))
		rubricChanges = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "rubric_changes_total",
			Help:      "Rubric items added, deleted or edited.",
		}, []string{"action"}))
		submissions = registerCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "submissions_total",
			Help:      "Scripts marked as completed.",
		}))
		reportsRendered = registerCounter(prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "reports_rendered_total",
			Help:      "Grade report PDFs rendered.",
		}))
	})
}
