package conn

import (
	"io"

	"pgcore/internal/adapt"
	"pgcore/internal/cfg"
)

// Command is one unit of work routed to a connection worker. Routing through the
// channel serializes operations, so a worker connection never sees interleaved writes.
type Command struct {
	CommandType byte
	Query       *Query
	Body        interface{}
}

// ConnectRequest carries connection configuration to a worker. The outcome comes back
// on Result so the pool can tell a live worker from one whose dial failed.
type ConnectRequest struct {
	Config *cfg.Config
	Result chan ConnectResult
}

// ConnectResult reports one worker's connection attempt.
type ConnectResult struct {
	Number int
	Err    error
}

// CopyRequest carries a COPY command through the worker channel.
type CopyRequest struct {
	SQL string
	Src io.Reader // COPY IN source
	Dst io.Writer // COPY OUT destination

	Tag  CommandTag
	Err  error
	Done chan struct{}
}

// Start launches a connection worker goroutine consuming commandChan and announcing
// readiness on connReadyChan.
func Start(
	number int,
	reg *adapt.Registry,
	commandChan chan Command,
	connReadyChan chan int,
) {
	go run(number, reg, commandChan, connReadyChan)
}

func run(
	number int,
	reg *adapt.Registry,
	commandChan chan Command,
	connReadyChan chan int,
) {
	c := New(reg)
	worker := &worker{
		number:        number,
		conn:          c,
		commandChan:   commandChan,
		connReadyChan: connReadyChan,
	}

	for cmd := range commandChan {
		switch cmd.CommandType {
		case CommandQuery:
			c.ExecParams(cmd.Query)
			worker.ready()
			cmd.Query.ready()
		case CommandPrepare:
			c.Prepare(cmd.Query)
			worker.ready()
			cmd.Query.ready()
		case CommandPrepareAsync:
			c.PrepareAsync(cmd.Query)
			worker.ready()
			cmd.Query.Close()
		case CommandPreparedQuery:
			c.ExecPrepared(cmd.Query)
			worker.ready()
			cmd.Query.ready()
		case CommandLiteralQuery:
			c.ExecLiteral(cmd.Query)
			worker.ready()
			cmd.Query.ready()
		case CommandCopyFrom:
			req := cmd.Body.(*CopyRequest)
			req.Tag, req.Err = c.CopyFrom(req.SQL, req.Src)
			worker.ready()
			close(req.Done)
		case CommandCopyTo:
			req := cmd.Body.(*CopyRequest)
			req.Tag, req.Err = c.CopyTo(req.SQL, req.Dst)
			worker.ready()
			close(req.Done)
		case CommandAcquire:
			// Pin the connection for a transaction scope. The worker stops
			// announcing readiness until the matching release arrives, so no
			// foreign statement can interleave with the transaction.
			worker.held = true
			close(cmd.Body.(chan struct{}))
		case CommandRelease:
			worker.held = false
			worker.ready()
		case CommandConnect:
			req := cmd.Body.(*ConnectRequest)
			err := c.Connect(req.Config)
			if req.Result != nil {
				req.Result <- ConnectResult{Number: worker.number, Err: err}
			}
			if err != nil {
				// Stay offline; the pool decides whether to retry.
				continue
			}
			worker.ready()
		case CommandDisconnect:
			c.Close()
			return
		}
	}
}

type worker struct {
	number        int
	conn          *Conn
	commandChan   chan Command
	connReadyChan chan int
	held          bool
}

// ready re-registers the worker for dispatch once its queue has drained.
func (w *worker) ready() {
	if w.held {
		return
	}
	if len(w.commandChan) == 0 && !w.conn.Closed() {
		w.connReadyChan <- w.number
	}
}
