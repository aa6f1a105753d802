package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/scheduler"
)

// RecordsToData converts committed records to one table row each.
func RecordsToData(records []*sample.Record) Data {
	data := Data{
		Headers:         []string{"ID", "Fields", "Votes", "Verified", "Reason", "Committed"},
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignRight, AlignCenter, AlignLeft, AlignLeft},
	}
	for _, r := range records {
		data.Rows = append(data.Rows, []string{
			r.ID,
			FieldsString(r.Fields),
			VotesString(r.Votes),
			check(r.Verified),
			r.Reason,
			r.CommittedAt.Format(time.RFC3339),
		})
	}
	return data
}

// OutcomeToData converts a batch outcome to one row per round.
func OutcomeToData(o *scheduler.Outcome) Data {
	data := Data{
		Headers:         []string{"Round", "Dispatched", "Committed", "Errors"},
		ColumnAlignment: []Align{AlignRight, AlignRight, AlignRight, AlignRight},
	}
	for _, r := range o.Rounds {
		data.Rows = append(data.Rows, []string{
			strconv.Itoa(r.Round),
			strconv.Itoa(r.Dispatched),
			strconv.Itoa(r.Committed),
			strconv.Itoa(r.Errors),
		})
	}
	return data
}

// FieldsString renders fields as "name=value" pairs.
func FieldsString(fields []sample.Field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Name+"="+f.Value)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

// VotesString renders votes as "full/basic/similar of distinct".
func VotesString(v sample.Votes) string {
	return fmt.Sprintf("%d/%d/%d of %d", v.Full, v.Basic, v.Similar, v.Distinct)
}

func check(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Print writes data in format. Table output uses table; other formats
// serialize raw.
func Print(w io.Writer, format Format, raw any, table Data) error {
	if format == FormatTable || format == "" {
		return NewFormatter(FormatTable).Format(w, table)
	}
	return NewFormatter(format).Format(w, raw)
}
