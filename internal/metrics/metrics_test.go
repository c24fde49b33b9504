package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordUpload(OutcomeOK, 3)
	m.RecordUpload(OutcomeError, 0)
	m.RecordChatTurn(OutcomeCompletionFailed)
	m.RecordCompletion(time.Second, true)
	m.RecordDrift("no_chunk")
	m.RecordDrift("no_chunk")
	m.SetIndexedVectors(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChunksIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChatTurnsTotal.WithLabelValues(OutcomeCompletionFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetrievalDriftTotal.WithLabelValues("no_chunk")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.IndexedVectors))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordUpload(OutcomeOK, 1)
		m.RecordChatTurn(OutcomeOK)
		m.RecordCompletion(time.Second, false)
		m.RecordRetrieval(2)
		m.RecordDrift("no_metadata")
		m.RecordHTTP("/", 200, time.Millisecond)
		m.RecordRateLimited("/api/chat")
		m.RecordInboxFile(OutcomeOK)
		m.SetIndexedVectors(1)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordHTTP("/api/chat", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `docchat_http_requests_total{code="200",route="/api/chat"} 1`)
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}
