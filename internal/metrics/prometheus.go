package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaf_doctor_stage_outcomes_total",
			Help: "Outcomes of each diagnosis stage",
		},
		[]string{"stage", "status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leaf_doctor_stage_duration_seconds",
			Help:    "Remote call duration per diagnosis stage in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	DiagnosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaf_doctor_diagnoses_total",
			Help: "Detected diseases by plant type",
		},
		[]string{"plant_type"},
	)

	RecordWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaf_doctor_record_writes_total",
			Help: "Diagnosis record writes by status",
		},
		[]string{"status"},
	)

	ChatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaf_doctor_chat_requests_total",
			Help: "Conversation requests by status",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(StageOutcomes)
		prometheus.MustRegister(StageDuration)
		prometheus.MustRegister(DiagnosesTotal)
		prometheus.MustRegister(RecordWrites)
		prometheus.MustRegister(ChatRequests)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
