package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatstream_http_request_duration_seconds",
			Help:    "HTTP request duration, including the whole streamed body",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// Stream metrics
	FramesDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_frames_decoded_total",
			Help: "Total stream frames decoded",
		},
		[]string{"kind"}, // "text", "data", "error", "finish"
	)

	FramesEncoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_frames_encoded_total",
			Help: "Total stream frames written by the relay",
		},
		[]string{"kind"},
	)

	ParseAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_parse_anomalies_total",
			Help: "Total malformed input skipped by decoders and parsers",
		},
		[]string{"source"}, // "frame", "artifact", "message"
	)

	// Session metrics
	TurnsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_turns_settled_total",
			Help: "Total chat turns by outcome",
		},
		[]string{"outcome"}, // "completed", "aborted", "failed"
	)

	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_store_writes_total",
			Help: "Total transcript writes by result",
		},
		[]string{"result"}, // "ok", "skipped", "error"
	)

	// Upstream metrics
	UpstreamTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatstream_upstream_tokens_total",
			Help: "Tokens reported or estimated for upstream completions",
		},
		[]string{"type"}, // "prompt", "completion"
	)
)
