// Package incidents runs the incident tracker's server-side query command
// (locally or over ssh) and parses its tab-delimited output into incident
// records.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/atuld8/opskit/internal/config"
	"github.com/atuld8/opskit/internal/model"
)

// Source queries incident data and yields deduplicated records filtered by
// incident classification.
type Source struct {
	runner    Runner
	fallback  Runner
	typeMatch string
	batchSize int
	log       zerolog.Logger
}

// NewSource wires a Source from cfg. A remote host, when configured, serves
// as fallback for a missing local executable.
func NewSource(cfg *config.Config, log zerolog.Logger) *Source {
	timeout := time.Duration(cfg.IncidentTimeoutSecs) * time.Second
	s := &Source{
		runner:    NewLocalRunner(cfg.IncidentCommand, timeout),
		typeMatch: cfg.IncidentType,
		batchSize: cfg.IncidentBatchSize,
		log:       log,
	}
	if cfg.IncidentRemoteHost != "" {
		s.fallback = NewRemoteRunner(cfg.IncidentRemoteHost, cfg.IncidentCommand, timeout)
	}
	return s
}

// NewSourceWithRunner is used by tests to inject a scripted runner.
func NewSourceWithRunner(r Runner, typeMatch string, batchSize int, log zerolog.Logger) *Source {
	return &Source{runner: r, typeMatch: typeMatch, batchSize: batchSize, log: log}
}

func (s *Source) run(ctx context.Context, stdin string, args ...string) (string, error) {
	out, err := s.runner.Run(ctx, stdin, args...)
	if errors.Is(err, ErrExecutableNotFound) && s.fallback != nil {
		return s.fallback.Run(ctx, stdin, args...)
	}
	return out, err
}

// QueryByName executes the named server-side query and returns its records
// after classification filtering.
func (s *Source) QueryByName(ctx context.Context, queryName string) ([]model.IncidentRecord, error) {
	out, err := s.run(ctx, "", "-q", queryName)
	if err != nil {
		return nil, err
	}
	records, skipped := ParseCorrelation(out)
	if skipped > 0 {
		s.log.Warn().Int("lines", skipped).Msg("skipped malformed correlation lines")
	}
	return s.filterByType(ctx, records)
}

// Column lists for the raw select modes. ParseSelectRows uses them to
// recognize echoed header lines.
var (
	refColumns  = []string{"incident_number", "internal_user_id", "reference_added_by", "external_refs"}
	typeColumns = []string{"incident_number", "incident_type"}
)

// QueryByNumbers fetches correlation rows for an explicit incident batch,
// chunking the IN clause to bound statement size.
func (s *Source) QueryByNumbers(ctx context.Context, numbers []string) ([]model.IncidentRecord, error) {
	var all []model.IncidentRecord
	for start := 0; start < len(numbers); start += s.batchSize {
		end := start + s.batchSize
		if end > len(numbers) {
			end = len(numbers)
		}
		stmt := fmt.Sprintf(
			"select %s from incident_refs where incident_number in (%s);",
			strings.Join(refColumns, ", "), quoteList(numbers[start:end]))
		out, err := s.run(ctx, stmt)
		if err != nil {
			return nil, err
		}
		rows := ParseSelectRows(out, refColumns)
		for _, row := range rows {
			all = append(all, model.IncidentRecord{
				IncidentNumber:    row[0],
				InternalUserID:    row[1],
				WhoAddedReference: row[2],
				ExternalTickets:   splitExternalIDs(row[3]),
			})
		}
	}
	return s.filterByType(ctx, dedupeRecords(all))
}

// filterByType looks up each incident's classification through the raw select
// mode and drops records that don't match. Mismatches are counted, never
// treated as errors.
func (s *Source) filterByType(ctx context.Context, records []model.IncidentRecord) ([]model.IncidentRecord, error) {
	if s.typeMatch == "" || len(records) == 0 {
		return records, nil
	}

	var numbers []string
	seen := make(map[string]bool)
	for _, r := range records {
		if !seen[r.IncidentNumber] {
			seen[r.IncidentNumber] = true
			numbers = append(numbers, r.IncidentNumber)
		}
	}

	types := make(map[string]string, len(numbers))
	for start := 0; start < len(numbers); start += s.batchSize {
		end := start + s.batchSize
		if end > len(numbers) {
			end = len(numbers)
		}
		stmt := fmt.Sprintf(
			"select %s from incidents where incident_number in (%s);",
			strings.Join(typeColumns, ", "), quoteList(numbers[start:end]))
		out, err := s.run(ctx, stmt)
		if err != nil {
			return nil, err
		}
		for _, row := range ParseSelectRows(out, typeColumns) {
			types[row[0]] = row[1]
		}
	}

	var kept []model.IncidentRecord
	dropped := 0
	for _, r := range records {
		t := types[r.IncidentNumber]
		if !strings.EqualFold(t, s.typeMatch) {
			dropped++
			continue
		}
		r.IncidentType = t
		kept = append(kept, r)
	}
	if dropped > 0 {
		s.log.Info().Int("dropped", dropped).Str("type", s.typeMatch).Msg("filtered incidents by classification")
	}
	return kept, nil
}

// ParseCorrelation parses the four-column tab-separated correlation output:
// incident, internal user id, who added the reference, comma-separated
// external ids. Lines with fewer than four fields are skipped and counted;
// rows sharing (incident, user) are merged, unioning their external ids.
func ParseCorrelation(out string) ([]model.IncidentRecord, int) {
	type key struct{ incident, user string }
	index := make(map[key]int)
	var records []model.IncidentRecord
	skipped := 0

	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			skipped++
			continue
		}
		k := key{strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])}
		ids := splitExternalIDs(fields[3])
		if i, ok := index[k]; ok {
			records[i].ExternalTickets = unionIDs(records[i].ExternalTickets, ids)
			continue
		}
		index[k] = len(records)
		records = append(records, model.IncidentRecord{
			IncidentNumber:    k.incident,
			InternalUserID:    k.user,
			WhoAddedReference: strings.TrimSpace(fields[2]),
			ExternalTickets:   ids,
		})
	}
	return records, skipped
}

var (
	separatorRe = regexp.MustCompile(`^[\s|+-]+$`)
	rowCountRe  = regexp.MustCompile(`(?i)^\(?\d+\s+rows?`)
)

// ParseSelectRows parses raw select output: pipe- or tab-delimited rows with
// separator and row-count lines skipped by pattern. A header line is
// recognized by its fields matching the selected column names, so quiet
// output modes that omit the header lose no data.
func ParseSelectRows(out string, cols []string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || separatorRe.MatchString(trimmed) || rowCountRe.MatchString(trimmed) {
			continue
		}
		var fields []string
		if strings.Contains(trimmed, "|") {
			fields = strings.Split(trimmed, "|")
		} else {
			fields = strings.Split(trimmed, "\t")
		}
		var clean []string
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f != "" || len(clean) > 0 {
				clean = append(clean, f)
			}
		}
		if len(clean) < len(cols) {
			continue
		}
		if isHeaderRow(clean, cols) {
			continue
		}
		rows = append(rows, clean[:len(cols)])
	}
	return rows
}

func isHeaderRow(fields, cols []string) bool {
	for i, c := range cols {
		if !strings.EqualFold(fields[i], c) {
			return false
		}
	}
	return true
}

func splitExternalIDs(s string) []string {
	set := make(map[string]bool)
	for _, id := range strings.Split(s, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			set[id] = true
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func unionIDs(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		set[id] = true
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func dedupeRecords(records []model.IncidentRecord) []model.IncidentRecord {
	type key struct{ incident, user string }
	index := make(map[key]int)
	var out []model.IncidentRecord
	for _, r := range records {
		k := key{r.IncidentNumber, r.InternalUserID}
		if i, ok := index[k]; ok {
			out[i].ExternalTickets = unionIDs(out[i].ExternalTickets, r.ExternalTickets)
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "'" + strings.ReplaceAll(it, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}
