package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/docker/docker/api/types/container"

	"github.com/logpost-sh/agent/internal/model"
)

type fakeContainerAPI struct {
	summaries []container.Summary
	listErr   error
	logs      []byte
	logsErr   error
}

func (f *fakeContainerAPI) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	return f.summaries, f.listErr
}

func (f *fakeContainerAPI) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return io.NopCloser(bytes.NewReader(f.logs)), nil
}

func frame(streamType byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = streamType
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, payload...)
}

func TestListWorkloadsSkipsMissingFields(t *testing.T) {
	api := &fakeContainerAPI{
		summaries: []container.Summary{
			{
				ID:      "id-1",
				Names:   []string{"/web"},
				Image:   "nginx:latest",
				Command: "nginx",
				Status:  "Up 2 hours",
			},
			{
				// No name: must be skipped, not returned as an error.
				ID:      "id-2",
				Image:   "redis:7",
				Command: "redis-server",
				Status:  "Up 1 hour",
			},
			{
				// No status: skipped too.
				ID:      "id-3",
				Names:   []string{"/db"},
				Image:   "postgres:16",
				Command: "postgres",
			},
		},
	}

	src := NewDockerSourceWithClient(api)
	got, err := src.ListWorkloads(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d workloads, want 1: %+v", len(got), got)
	}
	if got[0].ID != "id-1" || got[0].Name != "web" {
		t.Errorf("unexpected workload: %+v", got[0])
	}
}

func TestListWorkloadsTrimsLeadingSlash(t *testing.T) {
	api := &fakeContainerAPI{
		summaries: []container.Summary{
			{ID: "x", Names: []string{"/my-app"}, Image: "img", Command: "cmd", Status: "Up"},
		},
	}

	src := NewDockerSourceWithClient(api)
	got, err := src.ListWorkloads(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Name != "my-app" {
		t.Errorf("name = %q, want %q", got[0].Name, "my-app")
	}
}

func TestListWorkloadsUnavailable(t *testing.T) {
	api := &fakeContainerAPI{listErr: errors.New("cannot connect to the Docker daemon")}

	src := NewDockerSourceWithClient(api)
	_, err := src.ListWorkloads(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestFetchLogTailDemuxesFrames(t *testing.T) {
	var stream []byte
	stream = append(stream, frame(1, "out line\n")...)
	stream = append(stream, frame(2, "err line\n")...)
	stream = append(stream, frame(1, "more out\n")...)

	api := &fakeContainerAPI{logs: stream}
	src := NewDockerSourceWithClient(api)

	chunks, err := src.FetchLogTail(context.Background(), "id-1", 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.LogChunk{
		{Stream: model.StreamOut, Data: []byte("out line\n")},
		{Stream: model.StreamErr, Data: []byte("err line\n")},
		{Stream: model.StreamOut, Data: []byte("more out\n")},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i := range want {
		if chunks[i].Stream != want[i].Stream || !bytes.Equal(chunks[i].Data, want[i].Data) {
			t.Errorf("chunk %d = {%s %q}, want {%s %q}",
				i, chunks[i].Stream, chunks[i].Data, want[i].Stream, want[i].Data)
		}
	}
}

func TestFetchLogTailRawStreamBecomesConsole(t *testing.T) {
	// A TTY container's log stream has no stdcopy framing.
	api := &fakeContainerAPI{logs: []byte("plain tty output with no framing\n")}
	src := NewDockerSourceWithClient(api)

	chunks, err := src.FetchLogTail(context.Background(), "id-1", 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Stream != model.StreamConsole {
		t.Errorf("stream = %s, want console", chunks[0].Stream)
	}
	if string(chunks[0].Data) != "plain tty output with no framing\n" {
		t.Errorf("data = %q", chunks[0].Data)
	}
}

func TestFetchLogTailShortTrailingBytes(t *testing.T) {
	// Raw output shorter than one frame header must not be lost.
	api := &fakeContainerAPI{logs: []byte("hi\n")}
	src := NewDockerSourceWithClient(api)

	chunks, err := src.FetchLogTail(context.Background(), "id-1", 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || string(chunks[0].Data) != "hi\n" {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestFetchLogTailEmptyStream(t *testing.T) {
	api := &fakeContainerAPI{logs: nil}
	src := NewDockerSourceWithClient(api)

	chunks, err := src.FetchLogTail(context.Background(), "id-1", 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("chunks = %+v, want none", chunks)
	}
}
