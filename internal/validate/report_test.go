package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atuld8/opskit/internal/model"
)

func sampleResults() []model.ValidationResult {
	actual := "k.smith"
	return []model.ValidationResult{
		{
			IncidentNumber:   "INC001",
			InternalUserID:   "j_doe",
			ExpectedAssignee: "j.doe",
			Status:           model.StatusMismatched,
			Checks: []model.AssigneeCheck{
				{TicketID: "EXT-1", Actual: &actual, Expected: "j.doe"},
			},
		},
		{
			IncidentNumber: "INC002",
			InternalUserID: "-",
			Status:         model.StatusSkippedInvalidUser,
		},
	}
}

func TestWriteTable(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteTable(&buf, sampleResults()))

	out := buf.String()
	require.Contains(t, out, "INCIDENT")
	require.Contains(t, out, "INC001")
	require.Contains(t, out, "mismatched")
	require.Contains(t, out, "2 total: 0 matched, 1 mismatched, 0 unknown user, 1 skipped")
}

func TestWriteDetails(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteDetails(&buf, sampleResults()))

	out := buf.String()
	require.Contains(t, out, `EXT-1: expected "j.doe", actual "k.smith" [MISMATCH]`)
	require.Contains(t, out, "incident INC002 (user -): skipped_invalid_user")
}
