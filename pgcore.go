// Package pgcore is a PostgreSQL client built directly on the v3 wire protocol.
// Statements run through a pool of channel-driven connection workers; parameters are
// bound server side by default, with an explicit client-side literal mode for the
// statements the extended protocol cannot express.
package pgcore

import (
	"pgcore/internal/adapt"
	"pgcore/internal/cfg"
	"pgcore/internal/conn"
)

const (
	min  = 16
	max  = 128
	eMax = 1024
)

type Pool struct {
	config cfg.Config
	reg    *adapt.Registry

	conns   *connections
	queries *Queries

	queryChan      chan *conn.Query
	emptyQueryChan chan *conn.Query
	connReadyChan  chan int

	ps preparedStatements
}

// Registry returns the pool's type adapter registry. Register custom dumpers and
// loaders on it before issuing queries.
func (p *Pool) Registry() *adapt.Registry {
	return p.reg
}
