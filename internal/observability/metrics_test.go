package observability

import (
	"testing"
	"time"

	"github.com/danmuck/mycelia/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("listener-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordConnAccepted("listener-a")
	RecordFrame("listener-a", "frame", 64, time.Millisecond, true)
	RecordConnError("listener-a", "read")
	RecordConnClosed("listener-a")
	RecordConnRejected("listener-a")
	RecordSend("MESSAGE", 3*time.Millisecond, true)
}

func TestListenerCountersAdvance(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(listenerFrames.WithLabelValues("listener-b", "frame"))
	respBefore := testutil.ToFloat64(listenerResponses.WithLabelValues("listener-b"))
	activeBefore := testutil.ToFloat64(listenerActive.WithLabelValues("listener-b"))
	RecordFrame("listener-b", "frame", 10, time.Millisecond, false)
	RecordFrame("listener-b", "frame", 10, time.Millisecond, true)
	if got := testutil.ToFloat64(listenerFrames.WithLabelValues("listener-b", "frame")); got != before+2 {
		t.Fatalf("frames counter got=%v want=%v", got, before+2)
	}
	if got := testutil.ToFloat64(listenerBytes.WithLabelValues("listener-b")); got < 20 {
		t.Fatalf("bytes counter got=%v", got)
	}
	if got := testutil.ToFloat64(listenerResponses.WithLabelValues("listener-b")); got != respBefore+1 {
		t.Fatalf("responses counter got=%v want=%v", got, respBefore+1)
	}

	RecordConnAccepted("listener-b")
	RecordConnAccepted("listener-b")
	RecordConnClosed("listener-b")
	if got := testutil.ToFloat64(listenerActive.WithLabelValues("listener-b")); got != activeBefore+1 {
		t.Fatalf("active gauge got=%v want=%v", got, activeBefore+1)
	}
}
