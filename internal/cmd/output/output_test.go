package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/scheduler"
)

func testRecords() []*sample.Record {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	verified := sample.New("5001", []sample.Field{{Name: "name", Value: "Casa Nova"}, {Name: "lat", Value: "40.1"}})
	unverified := sample.New("5002", []sample.Field{{Name: "name", Value: "Moinho"}})

	second := sample.NewRecord(unverified, sample.Votes{Basic: 1, Distinct: 2}, false, "last-chance pick", at)
	second.Warnings = []string{"target 5002 not verified after 2 probes"}
	return []*sample.Record{
		sample.NewRecord(verified, sample.Votes{Basic: 2, Full: 2, Distinct: 1}, true, "confident", at),
		second,
	}
}

func testOutcome() *scheduler.Outcome {
	return &scheduler.Outcome{
		Label:     "nightly",
		Rounds:    []scheduler.RoundStats{{Round: 1, Dispatched: 3, Committed: 1}, {Round: 2, Dispatched: 2, Committed: 1, Errors: 1}},
		Done:      []string{"5001", "5002"},
		Failed:    []string{"5003"},
		Tolerance: 1,
		Elapsed:   1500 * time.Millisecond,
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "JSON", "yaml", ""} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("xml")
	assert.True(t, errors.IsValidationError(err))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatYAML, DetectFormat("YAML"))
	// go test pipes stdout.
	assert.Contains(t, []Format{FormatTable, FormatJSON}, DetectFormat(""))
}

func TestRecordsToData(t *testing.T) {
	data := RecordsToData(testRecords())
	require.Len(t, data.Rows, 2)
	assert.Equal(t, []string{"5001", "lat=40.1, name=Casa Nova", "2/2/0 of 1", "yes", "confident", "2026-10-19T12:00:00Z"}, data.Rows[0])
	assert.Equal(t, "no", data.Rows[1][3])
	assert.Len(t, data.ColumnAlignment, len(data.Headers))
	assert.Equal(t, "-", FieldsString(nil))
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, testRecords(), RecordsToData(testRecords())))
	out := buf.String()
	assert.Contains(t, out, "5001")
	assert.Contains(t, out, "Casa Nova")
	assert.Contains(t, out, "last-chance pick")

	buf.Reset()
	require.NoError(t, NewFormatter(FormatTable).Format(&buf, scheduler.RoundStats{Round: 7, Dispatched: 9}))
	assert.Contains(t, strings.ToLower(buf.String()), "dispatched")
	assert.Contains(t, buf.String(), "9")

	buf.Reset()
	require.NoError(t, NewFormatter(FormatTable).Format(&buf, []string{"plain"}))
	assert.Contains(t, buf.String(), `"plain"`, "non-struct data falls back to JSON")
}

func TestSerializedFormats(t *testing.T) {
	records := testRecords()

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatJSON, records, RecordsToData(records)))
	var decoded []sample.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "5001", decoded[0].ID)

	buf.Reset()
	require.NoError(t, Print(&buf, FormatYAML, records, RecordsToData(records)))
	assert.Contains(t, buf.String(), "5001")
	assert.Contains(t, buf.String(), "reason: confident")
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, testOutcome(), testRecords(), nil))
	out := buf.String()

	assert.Contains(t, out, "# Batch nightly")
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "## Rounds")
	assert.Contains(t, out, "## Records")
	assert.Contains(t, out, "`5001`")
	assert.Contains(t, out, "Casa Nova")
	assert.Contains(t, out, "### Warnings")
	assert.Contains(t, out, "not verified after 2 probes")
	assert.Contains(t, out, "## Unresolved")
	assert.Contains(t, out, "`5003`")

	buf.Reset()
	batchErr := errors.NewBatchError("nightly", 0, []string{"5003"})
	require.NoError(t, WriteReport(&buf, testOutcome(), nil, batchErr))
	out = buf.String()
	assert.Contains(t, out, "failed: nightly: 1 jobs unresolved")
	assert.False(t, strings.Contains(out, "## Records"))
}
