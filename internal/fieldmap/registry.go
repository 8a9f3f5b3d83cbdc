package fieldmap

import (
	"fmt"
	"sort"
	"strings"
)

// Entry maps one remote custom field to one local column.
type Entry struct {
	RemoteFieldID  string
	RemoteFieldKey string
	LocalTable     string
	LocalColumn    string
	ValueType      ValueType
}

type columnRef struct {
	table  string
	column string
}

// Registry resolves remote field ids to local columns and back. It is built once
// from the persisted entries and is read-only afterwards, so it is safe for
// concurrent use.
type Registry struct {
	byID     map[string]Entry
	byColumn map[columnRef]Entry
	byTable  map[string][]Entry
}

// NewRegistry validates the entries and indexes them. Remote field ids and
// (table, column) pairs must both be unique.
func NewRegistry(entries []Entry) (*Registry, error) {
	r := &Registry{
		byID:     make(map[string]Entry, len(entries)),
		byColumn: make(map[columnRef]Entry, len(entries)),
		byTable:  make(map[string][]Entry),
	}

	for _, e := range entries {
		if e.RemoteFieldID == "" || e.LocalTable == "" || e.LocalColumn == "" {
			return nil, fmt.Errorf("incomplete field map entry: %+v", e)
		}
		if !e.ValueType.Valid() {
			return nil, fmt.Errorf("field %s: unsupported value type %q", e.RemoteFieldID, e.ValueType)
		}
		if prev, dup := r.byID[e.RemoteFieldID]; dup {
			return nil, fmt.Errorf("remote field %s mapped twice (%s.%s and %s.%s)",
				e.RemoteFieldID, prev.LocalTable, prev.LocalColumn, e.LocalTable, e.LocalColumn)
		}
		ref := columnRef{e.LocalTable, e.LocalColumn}
		if prev, dup := r.byColumn[ref]; dup {
			return nil, fmt.Errorf("column %s.%s mapped twice (remote %s and %s)",
				e.LocalTable, e.LocalColumn, prev.RemoteFieldID, e.RemoteFieldID)
		}

		r.byID[e.RemoteFieldID] = e
		r.byColumn[ref] = e
		r.byTable[e.LocalTable] = append(r.byTable[e.LocalTable], e)
	}

	for table := range r.byTable {
		sort.Slice(r.byTable[table], func(i, j int) bool {
			return r.byTable[table][i].LocalColumn < r.byTable[table][j].LocalColumn
		})
	}

	return r, nil
}

// Resolve looks up a remote field id. The second return is false for fields the
// engine does not mirror, which pull treats as expected and skips.
func (r *Registry) Resolve(remoteFieldID string) (Entry, bool) {
	e, ok := r.byID[remoteFieldID]
	return e, ok
}

// ReverseResolve returns the remote field key of a local column.
func (r *Registry) ReverseResolve(table, column string) (string, bool) {
	e, ok := r.byColumn[columnRef{table, column}]
	if !ok {
		return "", false
	}
	return e.RemoteFieldKey, true
}

// ReverseEntry returns the full entry of a local column.
func (r *Registry) ReverseEntry(table, column string) (Entry, bool) {
	e, ok := r.byColumn[columnRef{table, column}]
	return e, ok
}

// Entries returns the entries of one table ordered by column name.
func (r *Registry) Entries(table string) []Entry {
	out := make([]Entry, len(r.byTable[table]))
	copy(out, r.byTable[table])
	return out
}

// Columns returns the mapped column names of one table.
func (r *Registry) Columns(table string) []string {
	entries := r.byTable[table]
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.LocalColumn)
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.byID)
}

// ConsistencyError lists everything wrong with a registry against the local schema.
type ConsistencyError struct {
	Unmapped []string // pushable columns without a remote field
	Unknown  []string // entries pointing at columns that do not exist
}

func (e *ConsistencyError) Error() string {
	var parts []string
	if len(e.Unmapped) > 0 {
		parts = append(parts, "pushable columns without a remote field: "+strings.Join(e.Unmapped, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "mapped columns missing from the local schema: "+strings.Join(e.Unknown, ", "))
	}
	return "field map inconsistent: " + strings.Join(parts, "; ")
}

// CheckConsistency verifies the registry against the local schema. schema holds
// the real columns of each table and pushable the columns push must be able to
// send. It runs once at startup; a failure means the process must not sync.
func (r *Registry) CheckConsistency(schema map[string][]string, pushable map[string][]string) error {
	cerr := &ConsistencyError{}

	for table, columns := range pushable {
		for _, column := range columns {
			if _, ok := r.byColumn[columnRef{table, column}]; !ok {
				cerr.Unmapped = append(cerr.Unmapped, table+"."+column)
			}
		}
	}

	for table, entries := range r.byTable {
		known := make(map[string]bool, len(schema[table]))
		for _, c := range schema[table] {
			known[c] = true
		}
		for _, e := range entries {
			if !known[e.LocalColumn] {
				cerr.Unknown = append(cerr.Unknown, table+"."+e.LocalColumn)
			}
		}
	}

	if len(cerr.Unmapped) == 0 && len(cerr.Unknown) == 0 {
		return nil
	}
	sort.Strings(cerr.Unmapped)
	sort.Strings(cerr.Unknown)
	return cerr
}
