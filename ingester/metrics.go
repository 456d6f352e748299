package ingester

import (
	"time"

	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/basewatch/flashblocks-ingester/models"
)

var fragmentsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "flashblocks_ingester",
		Name:      "fragments_total",
		Help:      "Total number of fragments decoded from the stream",
	},
)

var transactionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "flashblocks_ingester",
		Name:      "transactions_total",
		Help:      "Total number of transactions seen across all fragments",
	},
)

var decodeErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flashblocks_ingester",
		Name:      "decode_errors_total",
		Help:      "Total number of stream messages that failed to decode",
	},
	[]string{"reason"},
)

var reconnectsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "flashblocks_ingester",
		Name:      "reconnects_total",
		Help:      "Total number of reconnect attempts",
	},
)

var blocksCompletedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "flashblocks_ingester",
		Name:      "blocks_completed_total",
		Help:      "Total number of blocks assembled to completion",
	},
	[]string{"close"},
)

var latestBlockNumber = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "flashblocks_ingester",
		Name:      "latest_block_number",
		Help:      "The most recent block number seen on the stream",
	},
)

var openBlockFragments = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "flashblocks_ingester",
		Name:      "open_block_fragments",
		Help:      "Fragments accumulated in the block currently being assembled",
	},
)

var fragmentIntervalMillis = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "flashblocks_ingester",
		Name:      "fragment_interval_millis",
		Help:      "Time between consecutive fragment arrivals on a connection",
		Buckets:   []float64{10, 50, 100, 150, 200, 300, 500, 1000, 2000},
	},
)

var blockSubBlocks = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "flashblocks_ingester",
		Name:      "block_sub_blocks",
		Help:      "Number of sub-blocks per completed block",
		Buckets:   []float64{1, 2, 4, 6, 8, 10, 15, 20, 30},
	},
)

func observeFragment(frag models.Fragment, openFragments int, sinceLast time.Duration) {
	fragmentsTotal.Inc()
	transactionsTotal.Add(float64(frag.TxCount()))
	if n := frag.BlockNumber(); n > 0 {
		latestBlockNumber.Set(float64(n))
	}
	openBlockFragments.Set(float64(openFragments))
	if sinceLast > 0 {
		fragmentIntervalMillis.Observe(float64(sinceLast.Milliseconds()))
	}
}

func observeDecodeErrorMetric(err error) {
	reason := "malformed"
	if errors.Is(err, ErrUnsupportedVersion) {
		reason = "unsupported_version"
	}
	decodeErrorsTotal.WithLabelValues(reason).Inc()
}

func observeReconnect() {
	reconnectsTotal.Inc()
}

func observeBlockCompleted(block models.CompletedBlock) {
	closeKind := "final"
	if block.Superseded {
		closeKind = "superseded"
	}
	blocksCompletedTotal.WithLabelValues(closeKind).Inc()
	blockSubBlocks.Observe(float64(len(block.Fragments)))
	openBlockFragments.Set(0)
}
