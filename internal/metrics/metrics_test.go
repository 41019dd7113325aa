package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder("st20", "test-recorder")

	r.FrameSent(100)
	r.FrameSent(50)
	r.Replayed()
	r.Overrun(3 * time.Millisecond)
	r.Rate(29.97)
	r.Iteration(2 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(FramesSentTotal.WithLabelValues("st20", "test-recorder")))
	assert.Equal(t, 150.0, testutil.ToFloat64(BytesSentTotal.WithLabelValues("st20", "test-recorder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ReplaysTotal.WithLabelValues("st20", "test-recorder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PacingOverrunsTotal.WithLabelValues("st20", "test-recorder")))
	assert.Equal(t, 29.97, testutil.ToFloat64(FPS.WithLabelValues("st20", "test-recorder")))
	assert.Equal(t, 1, testutil.CollectAndCount(IterationSeconds, "mediatx_iteration_seconds"))
}

func TestServerServesMetrics(t *testing.T) {
	NewRecorder("st30", "test-server").FrameSent(1)

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mediatx_frames_sent_total{payload="st30",protocol="test-server"} 1`)
}

func TestServerStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "/m").Stop(context.Background()))
}

func TestServerListenError(t *testing.T) {
	s := NewServer("127.0.0.1:-1", "")
	assert.Error(t, s.Start(context.Background()))
}
