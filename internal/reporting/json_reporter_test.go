package reporting

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lancet/api/schemas"
)

func TestJSONReporterDocument(t *testing.T) {
	w := &captureWriter{}
	r := NewJSONReporter(w, zaptest.NewLogger(t))

	first := sampleFlow()
	second := sampleFlow()
	second.Sink.RuleID = "sink.eval"
	require.NoError(t, r.Write([]schemas.TaintFlow{first}))
	require.NoError(t, r.Write([]schemas.TaintFlow{second}))
	require.NoError(t, r.Close())
	assert.True(t, w.closed)

	var report struct {
		Tool  string              `json:"tool"`
		Flows []schemas.TaintFlow `json:"flows"`
	}
	require.NoError(t, json.Unmarshal(w.buf.Bytes(), &report))
	assert.Equal(t, ToolName, report.Tool)
	require.Len(t, report.Flows, 2)
	assert.Equal(t, "src.req.query", report.Flows[0].Source.RuleID)
	assert.Equal(t, "sink.eval", report.Flows[1].Sink.RuleID)
}

func TestJSONReporterEmpty(t *testing.T) {
	w := &captureWriter{}
	r := NewJSONReporter(w, zaptest.NewLogger(t))
	require.NoError(t, r.Close())

	var report struct {
		Flows []schemas.TaintFlow `json:"flows"`
	}
	require.NoError(t, json.Unmarshal(w.buf.Bytes(), &report))
	assert.NotNil(t, report.Flows, "an empty report keeps an empty array, not null")
	assert.Empty(t, report.Flows)
}

func TestJSONReporterCloseFailure(t *testing.T) {
	w := &captureWriter{failClose: true}
	r := NewJSONReporter(w, zaptest.NewLogger(t))
	assert.Error(t, r.Close())
}
