package pgo

import (
	"fmt"
	"time"

	"github.com/bryanhughes/pgo/pgtype"
	"github.com/bryanhughes/pgo/wire"
)

// Result is the outcome of one completed statement.
//
// Rows holds the decoded row tuples in order. When the query ran with
// RowsAsMaps, Maps holds the same rows keyed by column name and Rows
// is nil. NumRows is the row count for row-returning commands and the
// affected-row count from the command tag otherwise.
type Result struct {
	Command CommandTag
	NumRows int
	Rows    [][]any
	Maps    []map[string]any

	FieldDescriptions []wire.FieldDescription

	// QueueTime is how long the pool checkout behind this query
	// waited. Zero when the query ran on an ambient connection.
	QueueTime time.Duration
}

// QueryOpts adjusts how a single query decodes its result.
type QueryOpts struct {
	// RowsAsMaps returns each row as a column-name-to-value map
	// instead of a positional tuple.
	RowsAsMaps bool
}

// pendingResult accumulates rows for the statement currently being
// received.
type pendingResult struct {
	fields []wire.FieldDescription
	rows   [][]any
	maps   []map[string]any
	asMaps bool
}

func newPendingResult(fields []wire.FieldDescription) *pendingResult {
	return &pendingResult{fields: fields}
}

// appendRow decodes one DataRow. Binary columns go through the type
// map; text columns (simple query results) decode to string.
func (pr *pendingResult) appendRow(m *pgtype.Map, values [][]byte, asMaps bool) error {
	if len(values) != len(pr.fields) {
		return fmt.Errorf("row has %d values but %d field descriptions", len(values), len(pr.fields))
	}
	pr.asMaps = asMaps

	decoded := make([]any, len(values))
	for i, src := range values {
		if src == nil {
			decoded[i] = nil
			continue
		}

		if pr.fields[i].Format == wire.TextFormat {
			decoded[i] = string(src)
			continue
		}

		v, err := m.DecodeBinary(pr.fields[i].DataTypeOID, src)
		if err != nil {
			return fmt.Errorf("column %q: %w", pr.fields[i].Name, err)
		}
		decoded[i] = v
	}

	if asMaps {
		rowMap := make(map[string]any, len(decoded))
		for i, v := range decoded {
			rowMap[pr.fields[i].Name] = v
		}
		pr.maps = append(pr.maps, rowMap)
	} else {
		pr.rows = append(pr.rows, decoded)
	}

	return nil
}

func (pr *pendingResult) rowCount() int {
	if pr.asMaps {
		return len(pr.maps)
	}
	return len(pr.rows)
}

func (pr *pendingResult) finish(tag CommandTag) *Result {
	r := &Result{
		Command:           tag,
		Rows:              pr.rows,
		Maps:              pr.maps,
		FieldDescriptions: pr.fields,
	}

	switch tag.Verb {
	case VerbSelect, VerbFetch:
		r.NumRows = pr.rowCount()
	default:
		if tag.Rows >= 0 {
			r.NumRows = int(tag.Rows)
		}
	}

	return r
}
