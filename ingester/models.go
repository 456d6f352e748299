package ingester

import (
	"sync/atomic"
	"time"

	"github.com/basewatch/flashblocks-ingester/models"
)

// Info tracks the stream's running counters. The int64 fields are updated
// with atomics: the receive loop writes while the progress reporter and
// the metrics gauges read.
type Info struct {
	Endpoint          string
	LatestBlockNumber int64
	BlocksCompleted   int64
	FragmentsSeen     int64
	TransactionsSeen  int64
	Reconnects        int64
	Errors            ErrorState
	Since             time.Time
}

func NewInfo(endpoint string) Info {
	return Info{
		Endpoint: endpoint,
		Errors: ErrorState{
			DecodeErrors:    make([]ErrorInfo, 0, 100),
			TransportErrors: make([]ErrorInfo, 0, 100),
		},
		Since: time.Now(),
	}
}

// ToProgressReport snapshots the counters for the periodic report. Value
// receiver so it can be chained off an Info() snapshot.
func (info Info) ToProgressReport() models.StreamProgress {
	return models.StreamProgress{
		LatestBlockNumber: atomic.LoadInt64(&info.LatestBlockNumber),
		BlocksCompleted:   atomic.LoadInt64(&info.BlocksCompleted),
		FragmentsSeen:     atomic.LoadInt64(&info.FragmentsSeen),
		TransactionsSeen:  atomic.LoadInt64(&info.TransactionsSeen),
		DecodeErrors:      int64(info.Errors.DecodeErrorCount),
		Reconnects:        atomic.LoadInt64(&info.Reconnects),
		Since:             info.Since,
	}
}

func (info *Info) ResetErrors() {
	info.Since = time.Now()
	info.Errors.Reset()
}

// ErrorState keeps a bounded window of recent errors for the progress
// report, plus total counts. The slices never grow past their initial
// capacity: once full, the oldest entry is dropped.
type ErrorState struct {
	DecodeErrors        []ErrorInfo
	TransportErrors     []ErrorInfo
	DecodeErrorCount    int
	TransportErrorCount int
}

type ErrorInfo struct {
	Timestamp time.Time
	PayloadID string
	Error     error
}

func (es *ErrorState) Reset() {
	es.DecodeErrors = es.DecodeErrors[:0]
	es.TransportErrors = es.TransportErrors[:0]
	es.DecodeErrorCount = 0
	es.TransportErrorCount = 0
}

func (es *ErrorState) ObserveDecodeError(err ErrorInfo) {
	es.DecodeErrorCount++
	err.Timestamp = time.Now()
	es.DecodeErrors = appendBounded(es.DecodeErrors, err)
}

func (es *ErrorState) ObserveTransportError(err ErrorInfo) {
	es.TransportErrorCount++
	err.Timestamp = time.Now()
	es.TransportErrors = appendBounded(es.TransportErrors, err)
}

// appendBounded appends without growing past the slice's capacity,
// discarding the oldest entry when full.
func appendBounded(errs []ErrorInfo, err ErrorInfo) []ErrorInfo {
	if len(errs) == cap(errs) {
		tmp := make([]ErrorInfo, len(errs)-1, cap(errs))
		copy(tmp, errs[1:])
		errs = tmp
	}
	return append(errs, err)
}
