package wsstream

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dialCount = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flashblocks_ingester",
		Subsystem: "wsstream",
		Name:      "dial_total",
		Help:      "Total number of websocket dial attempts",
	},
	[]string{"status"},
)

var dialDurationMillis = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "flashblocks_ingester",
		Subsystem: "wsstream",
		Name:      "dial_duration_millis",
		Help:      "Duration of websocket dial attempts in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2000, 4000},
	},
)

var messageCount = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flashblocks_ingester",
		Subsystem: "wsstream",
		Name:      "messages_total",
		Help:      "Total number of stream messages received",
	},
	[]string{"type"},
)

var messageBytes = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "flashblocks_ingester",
		Subsystem: "wsstream",
		Name:      "message_bytes_total",
		Help:      "Total bytes received on the stream",
	},
)

func observeDial(ok bool, t0 time.Time) {
	status := "error"
	if ok {
		status = "ok"
	}
	dialCount.WithLabelValues(status).Inc()
	dialDurationMillis.Observe(float64(time.Since(t0).Milliseconds()))
}

func observeMessage(msgType int, size int) {
	kind := "text"
	if msgType == websocket.BinaryMessage {
		kind = "binary"
	}
	messageCount.WithLabelValues(kind).Inc()
	messageBytes.Add(float64(size))
}
