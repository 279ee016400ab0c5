package conn

import (
	"pgcore/internal/adapt"
	"pgcore/internal/wire"
)

// ResultFunc collects an asynchronous query result into dest when invoked.
type ResultFunc func(dest interface{}) error

// Result is the saved response of one exchange.
type Result struct {
	fields    []wire.FieldDescription
	rows      [][][]byte
	valuesBuf []byte

	reg              *adapt.Registry
	commandTag       CommandTag
	err              error
	commandConcluded bool
}

// appendRow deep-copies row values; decoded messages alias the read buffer which is
// reused by the next receive.
func (r *Result) appendRow(values [][]byte) {
	row := make([][]byte, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		pos := len(r.valuesBuf)
		r.valuesBuf = append(r.valuesBuf, v...)
		row[i] = r.valuesBuf[pos : pos+len(v) : pos+len(v)]
	}
	r.rows = append(r.rows, row)
}

func (r *Result) concludeCommand(commandTag CommandTag, err error) {
	// Keep the first error that is recorded. Store the error before checking if the command is already concluded to
	// allow for receiving an error after CommandComplete but before ReadyForQuery.
	if err != nil && r.err == nil {
		r.err = err
	}

	if r.commandConcluded {
		return
	}

	r.commandTag = commandTag
}

func (r *Result) reset() {
	r.fields = r.fields[:0]
	r.rows = r.rows[:0]
	r.valuesBuf = r.valuesBuf[:0]
	r.commandTag = nil
	r.err = nil
	r.commandConcluded = false
}

// Error returns the error recorded for this exchange, if any.
func (r *Result) Error() error {
	return r.err
}

// Tag returns the command tag of the concluded command.
func (r *Result) Tag() CommandTag {
	return r.commandTag
}

// RowCount returns the number of buffered data rows.
func (r *Result) RowCount() int {
	return len(r.rows)
}

// Fields returns the result column descriptors.
func (r *Result) Fields() []wire.FieldDescription {
	return r.fields
}

// Value loads the value at row, col through the adapter registry.
func (r *Result) Value(row, col int) (interface{}, error) {
	f := r.fields[col]
	return r.reg.Load(r.rows[row][col], f.DataTypeOID, f.Format)
}

// Iter returns a cursor over the buffered rows satisfying dbscan.Rows, so results can be
// scanned into structs and slices with scany.
func (r *Result) Iter() *Rows {
	return &Rows{result: r, idx: -1}
}

// Rows is a forward-only cursor over a Result.
type Rows struct {
	result *Result
	idx    int
}

func (rs *Rows) Next() bool {
	rs.idx++
	return rs.idx < len(rs.result.rows)
}

func (rs *Rows) Err() error {
	return rs.result.err
}

func (rs *Rows) Close() error {
	return nil
}

func (rs *Rows) Columns() ([]string, error) {
	cols := make([]string, len(rs.result.fields))
	for i := range rs.result.fields {
		cols[i] = rs.result.fields[i].Name
	}
	return cols, nil
}

// Scan converts the current row through the adapter registry into dest pointers.
func (rs *Rows) Scan(dest ...interface{}) error {
	if rs.idx < 0 || rs.idx >= len(rs.result.rows) {
		return SerializationError("scan called without a current row")
	}
	row := rs.result.rows[rs.idx]
	if len(dest) != len(row) {
		return SerializationError("number of destinations must equal number of columns")
	}
	for i, d := range dest {
		if d == nil {
			continue
		}
		f := rs.result.fields[i]
		if err := rs.result.reg.ScanTo(row[i], f.DataTypeOID, f.Format, d); err != nil {
			return err
		}
	}
	return nil
}
