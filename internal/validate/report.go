package validate

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/atuld8/opskit/internal/model"
)

// WriteTable renders one row per result plus a status summary.
func WriteTable(w io.Writer, results []model.ValidationResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INCIDENT\tUSER\tEXPECTED\tTICKETS\tSTATUS")

	counts := make(map[model.ValidationStatus]int)
	for _, r := range results {
		counts[r.Status]++
		expected := r.ExpectedAssignee
		if expected == "" {
			expected = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.IncidentNumber, r.InternalUserID, expected, len(r.Checks), r.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d total: %d matched, %d mismatched, %d unknown user, %d skipped\n",
		len(results),
		counts[model.StatusMatched],
		counts[model.StatusMismatched],
		counts[model.StatusUnknownUser],
		counts[model.StatusSkippedInvalidUser])
	return nil
}

// WriteDetails renders every assignee check, grouped by result.
func WriteDetails(w io.Writer, results []model.ValidationResult) error {
	for _, r := range results {
		fmt.Fprintf(w, "incident %s (user %s): %s\n", r.IncidentNumber, r.InternalUserID, r.Status)
		for _, c := range r.Checks {
			actual := "<none>"
			if c.Actual != nil {
				actual = *c.Actual
			}
			mark := "MISMATCH"
			if c.Matches {
				mark = "ok"
			}
			fmt.Fprintf(w, "  %s: expected %q, actual %q [%s]\n", c.TicketID, c.Expected, actual, mark)
			if c.Err != "" {
				fmt.Fprintf(w, "    error: %s\n", c.Err)
			}
		}
	}
	return nil
}
