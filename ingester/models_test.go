package ingester_test

import (
	"fmt"
	"testing"

	"github.com/go-errors/errors"
	"github.com/stretchr/testify/require"

	"github.com/basewatch/flashblocks-ingester/ingester"
)

func TestErrorWindowIsBounded(t *testing.T) {
	info := ingester.NewInfo("ws://localhost:8546")

	for i := 0; i < 150; i++ {
		info.Errors.ObserveDecodeError(ingester.ErrorInfo{
			Error: errors.Errorf("decode failure %d", i),
		})
	}

	require.Equal(t, 150, info.Errors.DecodeErrorCount)
	require.Len(t, info.Errors.DecodeErrors, 100)
	// oldest entries were dropped, newest kept
	require.Equal(t, "decode failure 50", fmt.Sprint(info.Errors.DecodeErrors[0].Error))
	require.Equal(t, "decode failure 149", fmt.Sprint(info.Errors.DecodeErrors[99].Error))
}

func TestErrorStateReset(t *testing.T) {
	info := ingester.NewInfo("ws://localhost:8546")
	info.Errors.ObserveDecodeError(ingester.ErrorInfo{Error: errors.Errorf("bad frame")})
	info.Errors.ObserveTransportError(ingester.ErrorInfo{Error: errors.Errorf("conn reset")})

	info.ResetErrors()

	require.Equal(t, 0, info.Errors.DecodeErrorCount)
	require.Equal(t, 0, info.Errors.TransportErrorCount)
	require.Empty(t, info.Errors.DecodeErrors)
	require.Empty(t, info.Errors.TransportErrors)
}

func TestInfoToProgressReport(t *testing.T) {
	info := ingester.NewInfo("ws://localhost:8546")
	info.LatestBlockNumber = 7748
	info.BlocksCompleted = 12
	info.FragmentsSeen = 61
	info.TransactionsSeen = 900
	info.Reconnects = 2
	info.Errors.ObserveDecodeError(ingester.ErrorInfo{Error: errors.Errorf("bad frame")})

	report := info.ToProgressReport()

	require.Equal(t, int64(7748), report.LatestBlockNumber)
	require.Equal(t, int64(12), report.BlocksCompleted)
	require.Equal(t, int64(61), report.FragmentsSeen)
	require.Equal(t, int64(900), report.TransactionsSeen)
	require.Equal(t, int64(1), report.DecodeErrors)
	require.Equal(t, int64(2), report.Reconnects)
	require.Equal(t, info.Since, report.Since)
}
