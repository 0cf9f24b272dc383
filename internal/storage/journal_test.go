package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"fetchbridge/internal/logger"
	"fetchbridge/pkg/traffic"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), "test_", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalRecordAndQuery(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	base := time.Now()
	for i, outcome := range []Outcome{OutcomeResolved, OutcomeForwarded, OutcomeUnresolved} {
		require.NoError(t, j.Record(ctx, &Exchange{
			TraceID:   "trace-" + string(outcome),
			Method:    "GET",
			URL:       "https://example.com/",
			Outcome:   outcome,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, OutcomeUnresolved, recent[0].Outcome)
	assert.Equal(t, OutcomeForwarded, recent[1].Outcome)
	assert.NotEmpty(t, recent[0].ID)

	byTrace, err := j.ByTrace(ctx, "trace-resolved")
	require.NoError(t, err)
	require.Len(t, byTrace, 1)
	assert.Equal(t, OutcomeResolved, byTrace[0].Outcome)
}

func TestHeadersJSON(t *testing.T) {
	doc := HeadersJSON(traffic.Header{
		"Content-Type": "text/plain",
		"x.dotted":     "1",
		"200":          "numeric",
	})

	assert.True(t, gjson.Valid(doc))
	parsed := gjson.Parse(doc).Map()
	assert.Equal(t, "text/plain", parsed["Content-Type"].String())
	assert.Equal(t, "1", parsed["x.dotted"].String())
	assert.Equal(t, "numeric", parsed["200"].String())

	assert.Equal(t, "{}", HeadersJSON(nil))
}
