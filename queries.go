/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package pgcore

import (
	"sync"
	"time"

	"pgcore/internal/adapt"
	"pgcore/internal/conn"
)

// Queries is a slice of preallocated queries
type Queries struct {
	mutex          sync.Mutex
	ticker         *time.Ticker
	emptyQueryChan chan *conn.Query
	list           []*conn.Query
}

func NewQueries(count int, reg *adapt.Registry, emptyQueryChan chan *conn.Query) *Queries {
	var q Queries
	q.emptyQueryChan = emptyQueryChan
	q.list = make([]*conn.Query, count)
	for i := range q.list {
		q.list[i] = conn.NewQuery(reg, emptyQueryChan)
	}
	q.ticker = time.NewTicker(conn.MaxResultSaveDuration)
	go q.startQueries()
	return &q
}

func (q *Queries) startQueries() {
	for {
		<-q.ticker.C
		if len(q.emptyQueryChan) < len(q.list)/4 {
			for i := range q.list {
				if !q.list[i].Actual() {
					q.list[i].Return()
				}
			}
		}
	}
}

func (q *Queries) Stop() {
	q.ticker.Stop()
}
