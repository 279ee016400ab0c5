/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package pgcore

import (
	"sync"

	"pgcore/internal/adapt"
	"pgcore/internal/cfg"
	"pgcore/internal/conn"
)

func Start(connString string) (*Pool, error) {
	var config cfg.Config
	err := config.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	var p = &Pool{
		config: config,
		reg:    adapt.NewRegistry(),
	}

	conns := make([]connection, max)
	emptyQueryChan := make(chan *conn.Query, eMax)
	p.emptyQueryChan = emptyQueryChan

	queries := NewQueries(cap(emptyQueryChan), p.reg, emptyQueryChan)
	p.queries = queries

	for i := range queries.list {
		emptyQueryChan <- queries.list[i]
	}

	qChan := make(chan *conn.Query, max)
	p.queryChan = qChan

	connReadyChan := make(chan int, max)
	p.connReadyChan = connReadyChan

	for i := range conns {
		cChan := make(chan conn.Command, min)
		conns[i].commandChan = cChan
		conn.Start(i, p.reg, cChan, connReadyChan)
	}
	p.conns = &connections{list: conns}

	p.ps = preparedStatements{
		list:  make(map[string]*conn.Description, max),
		mutex: sync.RWMutex{},
	}

	if err := p.connect(10); err != nil {
		p.queries.Stop()
		return nil, err
	}

	go p.start(
		qChan,
		connReadyChan,
	)

	return p, nil
}

func (p *Pool) start(
	qChan chan *conn.Query,
	connReadyChan chan int,
) {
	var q *conn.Query
	var cr int
	for {
		q = <-qChan
		cr = <-connReadyChan
		if q.Literal {
			p.conns.list[cr].commandChan <- conn.Command{
				CommandType: conn.CommandLiteralQuery,
				Query:       q,
			}
			continue
		}
		p.conns.list[cr].commandChan <- conn.Command{
			CommandType: conn.CommandPreparedQuery,
			Query:       q,
		}
	}
}

// Close disconnects every online worker. In-flight commands queued ahead of the
// disconnect are still processed.
func (p *Pool) Close() {
	p.queries.Stop()
	p.conns.mutex.Lock()
	defer p.conns.mutex.Unlock()
	for i := range p.conns.list {
		if p.conns.list[i].status == connStatusOnline {
			p.conns.list[i].commandChan <- conn.Command{
				CommandType: conn.CommandDisconnect,
			}
			p.conns.list[i].status = connStatusOffline
		}
	}
}
