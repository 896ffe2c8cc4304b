// Package metrics exposes pipeline measurements as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pendingctl/internal/core"
)

const namespace = "pendingctl"

// Metrics implements core.Recorder.
type Metrics struct {
	ChunksTotal      *prometheus.CounterVec
	ChunkTracksTotal *prometheus.CounterVec
	TracksTotal      *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	PendingSize      prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

var _ core.Recorder = (*Metrics)(nil)

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutation_chunks_total",
				Help:      "Total number of playlist mutation chunks submitted",
			},
			[]string{"op", "status"},
		),
		ChunkTracksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutation_tracks_total",
				Help:      "Total number of track ids in submitted mutation chunks",
			},
			[]string{"op", "status"},
		),
		TracksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracks_total",
				Help:      "Total number of tracks seen per pipeline stage",
			},
			[]string{"stage"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of sync runs",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Time spent in sync runs",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"status"},
		),
		PendingSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_playlist_size",
				Help:      "Number of distinct tracks known to be in the pending playlist",
			},
		),
		LastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last sync run finished",
			},
		),
	}

	registerer.MustRegister(
		m.ChunksTotal,
		m.ChunkTracksTotal,
		m.TracksTotal,
		m.RunsTotal,
		m.RunDuration,
		m.PendingSize,
		m.LastRunTimestamp,
	)

	return m
}

func (m *Metrics) RecordChunk(op core.MutationOp, ok bool, size int) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.ChunksTotal.WithLabelValues(string(op), status).Inc()
	m.ChunkTracksTotal.WithLabelValues(string(op), status).Add(float64(size))
}

func (m *Metrics) RecordTracks(stage string, count int) {
	m.TracksTotal.WithLabelValues(stage).Add(float64(count))
}

func (m *Metrics) SetPendingSize(size int) {
	m.PendingSize.Set(float64(size))
}

func (m *Metrics) RecordRun(status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.LastRunTimestamp.SetToCurrentTime()
}
