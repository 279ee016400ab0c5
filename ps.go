package pgcore

import (
	"strconv"
	"sync"

	"pgcore/internal/conn"
)

type preparedStatements struct {
	list  map[string]*conn.Description
	mutex sync.RWMutex
}

// checkDescription returns the cached statement description for the query's SQL,
// preparing it across the online connections on first use.
func (p *Pool) checkDescription(query *conn.Query) (*conn.Description, error) {
	p.ps.mutex.RLock()
	desc, ok := p.ps.list[query.SQL]

	if ok {
		p.ps.mutex.RUnlock()
		return desc, nil
	} else {
		p.ps.mutex.RUnlock()
		p.ps.mutex.Lock()
		defer p.ps.mutex.Unlock()
		if desc, ok := p.ps.list[query.SQL]; ok {
			return desc, nil
		}
		query.D = &conn.Description{Name: "pgcore_ps_" + strconv.Itoa(len(p.ps.list))}
		err := p.prepare(query)
		if err != nil {
			return nil, err
		}
		p.ps.list[query.SQL] = query.D
		return query.D, nil
	}

}
