package ingester

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basewatch/flashblocks-ingester/client/wsstream"
	"github.com/basewatch/flashblocks-ingester/lib/backoff"
)

type Ingester interface {
	// Run subscribes to the fragment stream and blocks until the context is
	// cancelled, MaxBlocks blocks have completed, or a fatal error occurs.
	// Transport failures are absorbed: Run reconnects with exponential
	// backoff instead of returning.
	Run(ctx context.Context) error

	// Info returns a snapshot of the stream counters.
	Info() Info

	Close() error
}

const (
	defaultBackoffMin       = 250 * time.Millisecond
	defaultBackoffMax       = 8 * time.Second
	defaultMinBlockDuration = time.Millisecond
	defaultReportInterval   = 30 * time.Second
)

type Config struct {
	// Endpoint is the stream URL, carried in Info snapshots and reports.
	Endpoint string
	// BackoffMin and BackoffMax bound the reconnect delay sequence.
	BackoffMin time.Duration
	BackoffMax time.Duration
	// MinBlockDuration is the floor used for tx/sec computation.
	MinBlockDuration time.Duration
	// ReportInterval is how often the progress report is logged.
	ReportInterval time.Duration
	// MaxBlocks stops the stream after this many completed blocks.
	// 0 streams forever.
	MaxBlocks int64
}

type ingester struct {
	log     *slog.Logger
	dialer  wsstream.Dialer
	sink    Sink
	cfg     Config
	info    Info
	errMu   sync.Mutex // guards info.Errors
	asm     *Assembler
	backoff *backoff.Exponential
	// lastFragmentAt tracks arrival spacing; supervisor goroutine only.
	lastFragmentAt time.Time
	// outageAttempts counts reconnect attempts in the current outage,
	// zeroed once a connection delivers a fragment; supervisor goroutine
	// only. info.Reconnects keeps the lifetime total.
	outageAttempts int64
	// sleep waits out reconnect backoff; injectable so tests can record
	// the delay sequence without waiting it out.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(
	log *slog.Logger,
	dialer wsstream.Dialer,
	sink Sink,
	cfg Config,
) Ingester {
	if cfg.BackoffMin == 0 {
		cfg.BackoffMin = defaultBackoffMin
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	if cfg.MinBlockDuration == 0 {
		cfg.MinBlockDuration = defaultMinBlockDuration
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = defaultReportInterval
	}
	log = log.With("module", "ingester")
	return &ingester{
		log:     log,
		dialer:  dialer,
		sink:    sink,
		cfg:     cfg,
		info:    NewInfo(cfg.Endpoint),
		asm:     NewAssembler(log),
		backoff: backoff.New(cfg.BackoffMin, cfg.BackoffMax),
		sleep:   sleepWithContext,
	}
}

func (i *ingester) Info() Info {
	info := Info{
		Endpoint:          i.info.Endpoint,
		LatestBlockNumber: atomic.LoadInt64(&i.info.LatestBlockNumber),
		BlocksCompleted:   atomic.LoadInt64(&i.info.BlocksCompleted),
		FragmentsSeen:     atomic.LoadInt64(&i.info.FragmentsSeen),
		TransactionsSeen:  atomic.LoadInt64(&i.info.TransactionsSeen),
		Reconnects:        atomic.LoadInt64(&i.info.Reconnects),
		Since:             i.info.Since,
	}
	i.errMu.Lock()
	info.Errors.DecodeErrorCount = i.info.Errors.DecodeErrorCount
	info.Errors.TransportErrorCount = i.info.Errors.TransportErrorCount
	i.errMu.Unlock()
	return info
}

func (i *ingester) Close() error {
	report := i.Info().ToProgressReport()
	i.log.Info("Final stream report",
		"endpoint", i.info.Endpoint,
		"blocksCompleted", report.BlocksCompleted,
		"fragmentsSeen", report.FragmentsSeen,
		"transactionsSeen", report.TransactionsSeen,
		"reconnects", report.Reconnects,
		"decodeErrors", report.DecodeErrors,
	)
	return nil
}

// sleepWithContext waits for the duration or returns early when the
// context is cancelled, so backoff never delays shutdown.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
