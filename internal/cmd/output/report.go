package output

import (
	"io"
	"strconv"

	md "github.com/nao1215/markdown"

	"github.com/agentstation/quorum/pkg/sample"
	"github.com/agentstation/quorum/pkg/scheduler"
)

// WriteReport writes a markdown summary of a batch: per-round counts, the
// committed records and the unresolved targets. batchErr is the error Run
// returned, if any.
func WriteReport(w io.Writer, o *scheduler.Outcome, records []*sample.Record, batchErr error) error {
	doc := md.NewMarkdown(w)
	doc.H1("Batch " + o.Label).LF()

	status := "succeeded"
	if batchErr != nil {
		status = "failed: " + batchErr.Error()
	}
	doc.BulletList(
		md.Bold("Status:")+" "+status,
		md.Bold("Committed:")+" "+strconv.Itoa(len(o.Done)),
		md.Bold("Unresolved:")+" "+strconv.Itoa(len(o.Failed))+" (tolerance "+strconv.Itoa(o.Tolerance)+")",
		md.Bold("Elapsed:")+" "+o.Elapsed.String(),
	).LF()

	rounds := OutcomeToData(o)
	doc.H2("Rounds").LF()
	doc.Table(md.TableSet{Header: rounds.Headers, Rows: rounds.Rows}).LF()

	if len(records) > 0 {
		doc.H2("Records").LF()
		rows := make([][]string, 0, len(records))
		var warned []string
		for _, r := range records {
			rows = append(rows, []string{
				md.Code(r.ID),
				FieldsString(r.Fields),
				VotesString(r.Votes),
				check(r.Verified),
				r.Reason,
			})
			for _, warning := range r.Warnings {
				warned = append(warned, md.Code(r.ID)+" "+warning)
			}
		}
		doc.Table(md.TableSet{
			Header: []string{"ID", "Fields", "Votes", "Verified", "Reason"},
			Rows:   rows,
		}).LF()

		if len(warned) > 0 {
			doc.H3("Warnings").LF()
			doc.BulletList(warned...).LF()
		}
	}

	if len(o.Failed) > 0 {
		doc.H2("Unresolved").LF()
		items := make([]string, len(o.Failed))
		for i, id := range o.Failed {
			items[i] = md.Code(id)
		}
		doc.BulletList(items...).LF()
	}

	return doc.Build()
}
