/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package conn

import (
	"pgcore/internal/wire"
)

// Description holds what the server reported about a statement at Describe time: the
// resolved parameter OIDs and the result columns. It is shared between the prepared
// statement cache and every query bound against the statement.
type Description struct {
	Name              string
	ParamOIDs         []uint32
	ResultFormats     []int16
	FieldDescriptions []wire.FieldDescription
}
