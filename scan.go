/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package pgcore

import (
	"github.com/georgysavva/scany/dbscan"

	"pgcore/internal/conn"
)

// ScanAll scans all rows of a saved result into dst, which must be a pointer to a
// slice of structs, maps or scalars.
func ScanAll(dst interface{}, r *conn.Result) error {
	return dbscan.ScanAll(dst, r.Iter())
}

// ScanOne scans exactly one row into dst. It fails when the result holds zero rows or
// more than one.
func ScanOne(dst interface{}, r *conn.Result) error {
	return dbscan.ScanOne(dst, r.Iter())
}
