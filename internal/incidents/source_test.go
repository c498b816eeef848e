package incidents

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// scriptedRunner replays canned outputs keyed by what the call looks like:
// "-q" args select the correlation output, select statements on stdin pick
// the matching canned query result.
type scriptedRunner struct {
	correlation string
	selects     map[string]string // substring of stdin -> output
	calls       []string
}

func (r *scriptedRunner) Run(_ context.Context, stdin string, args ...string) (string, error) {
	if len(args) >= 2 && args[0] == "-q" {
		r.calls = append(r.calls, "query:"+args[1])
		return r.correlation, nil
	}
	r.calls = append(r.calls, "select")
	for needle, out := range r.selects {
		if strings.Contains(stdin, needle) {
			return out, nil
		}
	}
	return "", nil
}

func TestParseCorrelation(t *testing.T) {
	out := strings.Join([]string{
		"INC001\tj_doe\tops_bot\tEXT-1,EXT-2",
		"INC001\tj_doe\tops_bot\tEXT-2,EXT-3", // same (incident, user): union ids
		"INC002\tk_smith\tops_bot\tEXT-9",
		"garbage line without tabs",
		"INC003\tonly\tthree", // too few fields
		"",
	}, "\n")

	records, skipped := ParseCorrelation(out)
	require.Equal(t, 2, skipped)
	require.Len(t, records, 2)
	require.Equal(t, "INC001", records[0].IncidentNumber)
	require.Equal(t, []string{"EXT-1", "EXT-2", "EXT-3"}, records[0].ExternalTickets)
	require.Equal(t, "k_smith", records[1].InternalUserID)
	require.Equal(t, []string{"EXT-9"}, records[1].ExternalTickets)
}

func TestParseSelectRows(t *testing.T) {
	out := strings.Join([]string{
		" incident_number | internal_user_id | reference_added_by | external_refs ",
		"-----------------+------------------+--------------------+---------------",
		" INC001          | j_doe            | ops_bot            | EXT-1,EXT-2   ",
		" INC002          | k_smith          | ops_bot            | EXT-9         ",
		"(2 rows)",
		"",
	}, "\n")

	rows := ParseSelectRows(out, refColumns)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"INC001", "j_doe", "ops_bot", "EXT-1,EXT-2"}, rows[0])
	require.Equal(t, []string{"INC002", "k_smith", "ops_bot", "EXT-9"}, rows[1])
}

func TestParseSelectRows_HeaderlessOutput(t *testing.T) {
	out := strings.Join([]string{
		"INC001\tj_doe\tops_bot\tEXT-1",
		"INC002\tk_smith\tops_bot\tEXT-9",
	}, "\n")

	rows := ParseSelectRows(out, refColumns)
	require.Equal(t, [][]string{
		{"INC001", "j_doe", "ops_bot", "EXT-1"},
		{"INC002", "k_smith", "ops_bot", "EXT-9"},
	}, rows, "quiet output without a header keeps every data row")
}

func TestParseSelectRows_TabDelimited(t *testing.T) {
	out := strings.Join([]string{
		"incident_number\tincident_type",
		"INC001\tservice request",
		"INC002\tchange",
		"2 rows selected",
	}, "\n")

	rows := ParseSelectRows(out, typeColumns)
	require.Equal(t, [][]string{
		{"INC001", "service request"},
		{"INC002", "change"},
	}, rows)
}

func TestQueryByName_FiltersByType(t *testing.T) {
	r := &scriptedRunner{
		correlation: "INC001\tj_doe\tops_bot\tEXT-1\nINC002\tk_smith\tops_bot\tEXT-2\n",
		selects: map[string]string{
			"from incidents": strings.Join([]string{
				"incident_number\tincident_type",
				"INC001\tService Request", // case-insensitive match
				"INC002\tchange",
			}, "\n"),
		},
	}
	s := NewSourceWithRunner(r, "service request", 100, zerolog.Nop())

	records, err := s.QueryByName(context.Background(), "weekly")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "INC001", records[0].IncidentNumber)
	require.Equal(t, "Service Request", records[0].IncidentType)
	require.Equal(t, []string{"query:weekly", "select"}, r.calls)
}

func TestQueryByNumbers_ChunksAndDedupes(t *testing.T) {
	selectOut := strings.Join([]string{
		"incident_number\tinternal_user_id\treference_added_by\texternal_refs",
		"INC001\tj_doe\tops_bot\tEXT-1",
		"INC001\tj_doe\tops_bot\tEXT-2",
	}, "\n")
	r := &scriptedRunner{selects: map[string]string{"from incident_refs": selectOut}}
	s := NewSourceWithRunner(r, "", 2, zerolog.Nop())

	records, err := s.QueryByNumbers(context.Background(), []string{"INC001", "INC002", "INC003"})
	require.NoError(t, err)
	// batch size 2 over 3 numbers makes two select calls
	require.Equal(t, []string{"select", "select"}, r.calls)
	// both chunks return the same rows, so dedupe must collapse them
	require.Len(t, records, 1)
	require.Equal(t, []string{"EXT-1", "EXT-2"}, records[0].ExternalTickets)
}

func TestQueryByNumbers_EmptyTypeSkipsFilter(t *testing.T) {
	r := &scriptedRunner{selects: map[string]string{
		"from incident_refs": "INC001\tj_doe\tops_bot\tEXT-1",
	}}
	s := NewSourceWithRunner(r, "", 100, zerolog.Nop())

	records, err := s.QueryByNumbers(context.Background(), []string{"INC001"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, []string{"select"}, r.calls, "no classification lookup without a type filter")
}

func TestQuoteList(t *testing.T) {
	require.Equal(t, "'INC001', 'o''brien'", quoteList([]string{"INC001", "o'brien"}))
}

func TestLocalRunner_ExecutableNotFound(t *testing.T) {
	r := NewLocalRunner("opskit-does-not-exist-xyz", 5*time.Second)
	_, err := r.Run(context.Background(), "")
	require.ErrorIs(t, err, ErrExecutableNotFound)
}

func TestLocalRunner_ExitCodeAndStderr(t *testing.T) {
	r := NewLocalRunner("sh", 5*time.Second)
	_, err := r.Run(context.Background(), "", "-c", "echo broken >&2; exit 3")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, 3, cmdErr.ExitCode)
	require.Contains(t, cmdErr.Stderr, "broken")
}

func TestLocalRunner_StdinAndStdout(t *testing.T) {
	r := NewLocalRunner("cat", 5*time.Second)
	out, err := r.Run(context.Background(), "hello\n")
	require.NoError(t, err)
	require.Equal(t, "hello\n", out)
}
