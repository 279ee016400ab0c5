package pgcore

import "pgcore/internal/conn"

// connect brings up to count offline workers online and waits for every dial to report
// back. Workers whose dial failed go back to offline. The returned error is the first
// failure, non-nil only when no worker came up at all.
func (p *Pool) connect(count int) error {
	p.conns.mutex.Lock()
	results := make(chan conn.ConnectResult, count)
	sent := 0
	for i := 0; i < count && i < len(p.conns.list); i++ {
		if p.conns.list[i].status == connStatusOffline {
			p.conns.list[i].commandChan <- conn.Command{
				CommandType: conn.CommandConnect,
				Body:        &conn.ConnectRequest{Config: p.config.Copy(), Result: results},
			}
			p.conns.list[i].status = connStatusOnline
			sent++
		}
	}
	p.conns.mutex.Unlock()

	var firstErr error
	failed := 0
	for i := 0; i < sent; i++ {
		res := <-results
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
			p.conns.mutex.Lock()
			p.conns.list[res.Number].status = connStatusOffline
			p.conns.mutex.Unlock()
		}
	}
	if sent > 0 && failed == sent {
		return firstErr
	}
	return nil
}
