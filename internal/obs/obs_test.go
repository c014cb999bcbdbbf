package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLoggerTo(&buf, false)

	lg.Info(map[string]interface{}{"event": "woke", "skew_ms": 3})
	lg.Error(map[string]interface{}{"event": "commit_failed", "error": errors.New("boom")})
	lg.Debug(map[string]interface{}{"event": "hidden"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "woke", first["event"])
	assert.NotEmpty(t, first["ts"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "error", second["level"])
	assert.Equal(t, "boom", second["error"])
}

func TestLoggerDebugEnabled(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLoggerTo(&buf, true)
	lg.Debug(map[string]interface{}{"event": "poll"})
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestNilLoggerAndMetricsAreNoops(t *testing.T) {
	var lg *Logger
	var m *Metrics
	assert.NotPanics(t, func() {
		lg.Info(map[string]interface{}{"event": "x"})
		lg.Error(map[string]interface{}{"event": "x"})
		lg.Debug(map[string]interface{}{"event": "x"})
		m.Poll("empty")
		m.Commit()
		m.Confirm("confirmed", time.Millisecond)
		m.WakeSkew(time.Millisecond)
	})
}

func TestMetricsCount(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Poll("empty")
	m.Poll("empty")
	m.Poll("slots")
	m.Commit()
	m.Confirm("confirmed", 40*time.Millisecond)
	m.WakeSkew(7 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollTotal.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollTotal.WithLabelValues("slots")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfirmTotal.WithLabelValues("confirmed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.WakeSkewMS))
}
