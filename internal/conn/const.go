package conn

const (
	statusUnknown byte = iota
	statusUninitialized
	statusConnecting
	statusClosed
	statusIdle
	statusBusy
)

const (
	CommandUnknown byte = iota
	CommandQuery
	CommandPreparedQuery
	CommandPrepare
	CommandPrepareAsync
	CommandLiteralQuery
	CommandCopyFrom
	CommandCopyTo
	CommandConnect
	CommandDisconnect
	CommandAcquire
	CommandRelease
)

// copy sub-protocol states
const (
	copyIdle byte = iota
	copyInActive
	copyOutActive
	copyFailed
)

const wbufLen = 1024

// copyChunkLen is the target CopyData payload size when streaming COPY IN from a reader.
const copyChunkLen = 65536
