/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package pgcore

import (
	"io"

	"pgcore/internal/conn"
)

// CopyFrom streams src into the table targeted by a COPY ... FROM STDIN statement and
// returns the server's command tag. A read error on src aborts the copy with CopyFail
// and leaves the connection usable.
func (p *Pool) CopyFrom(sql string, src io.Reader) (conn.CommandTag, error) {
	req := &conn.CopyRequest{
		SQL:  sql,
		Src:  src,
		Done: make(chan struct{}),
	}
	cr := <-p.connReadyChan
	p.conns.list[cr].commandChan <- conn.Command{
		CommandType: conn.CommandCopyFrom,
		Body:        req,
	}
	<-req.Done
	return req.Tag, req.Err
}

// CopyTo runs a COPY ... TO STDOUT statement and writes the produced data to dst. The
// concatenation of the writes is the complete copy payload.
func (p *Pool) CopyTo(sql string, dst io.Writer) (conn.CommandTag, error) {
	req := &conn.CopyRequest{
		SQL:  sql,
		Dst:  dst,
		Done: make(chan struct{}),
	}
	cr := <-p.connReadyChan
	p.conns.list[cr].commandChan <- conn.Command{
		CommandType: conn.CommandCopyTo,
		Body:        req,
	}
	<-req.Done
	return req.Tag, req.Err
}
