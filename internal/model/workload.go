package model

// StreamKind identifies which stream of a workload produced a log chunk.
type StreamKind string

const (
	StreamOut     StreamKind = "out"
	StreamErr     StreamKind = "err"
	StreamIn      StreamKind = "in"
	StreamConsole StreamKind = "console"
)

// LogChunk is one raw chunk of log output tagged with its originating stream.
type LogChunk struct {
	Stream StreamKind
	Data   []byte
}

// Workload is the observed state of one container, rebuilt wholesale on every
// poll cycle. Instances are read-only once published into the shared snapshot.
type Workload struct {
	ID      string
	Name    string
	Image   string
	Command string
	Status  string
	Labels  map[string]string
	LogTail []LogChunk
}
