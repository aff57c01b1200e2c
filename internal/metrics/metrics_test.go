package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/session"
)

func TestRecord(t *testing.T) {
	m := New()
	m.Record(session.Change{Kind: session.ChangeJoin, Stats: canvas.Stats{Participants: 1}})
	m.Record(session.Change{Kind: session.ChangeAppend, Stats: canvas.Stats{History: 1, Participants: 1}})
	m.Record(session.Change{Kind: session.ChangeAppend, Stats: canvas.Stats{History: 2, Participants: 1}})
	m.Record(session.Change{Kind: session.ChangeUndo, Stats: canvas.Stats{History: 1, Redo: 1, Participants: 1}})
	m.ClientDropped("p1")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.changes.WithLabelValues("append")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues("undo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.history))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redo))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.participants))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Record(session.Change{Kind: session.ChangeRedo, Stats: canvas.Stats{History: 3}})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `collabcanvas_changes_total{kind="redo"} 1`)
	assert.Contains(t, string(body), "collabcanvas_history_length 3")
}
