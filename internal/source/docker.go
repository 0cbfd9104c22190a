package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/go-logr/logr"

	"github.com/logpost-sh/agent/internal/model"
)

// containerAPI is the slice of the Docker client the source actually uses.
type containerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

// DockerSource reads workload state from a Docker daemon.
type DockerSource struct {
	cli containerAPI
}

// NewDockerSource connects to the Docker daemon using the standard environment
// configuration (DOCKER_HOST etc.) and verifies it is reachable.
func NewDockerSource(ctx context.Context) (*DockerSource, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return &DockerSource{cli: cli}, nil
}

// NewDockerSourceWithClient wraps an existing API client. Used by tests.
func NewDockerSourceWithClient(cli containerAPI) *DockerSource {
	return &DockerSource{cli: cli}
}

// ListWorkloads lists all containers, running or not. Containers missing a
// required field are logged and skipped; on the next cycle a previously seen
// id that is skipped here shows up as removed, which is the intended behavior.
func (d *DockerSource) ListWorkloads(ctx context.Context) ([]model.Workload, error) {
	log := logr.FromContextOrDiscard(ctx)

	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("%w: listing containers: %v", ErrSourceUnavailable, err)
	}

	workloads := make([]model.Workload, 0, len(summaries))
	for _, s := range summaries {
		w, ok := workloadFromSummary(s)
		if !ok {
			log.Info("skipping container with missing fields", "id", s.ID, "names", s.Names)
			continue
		}
		workloads = append(workloads, w)
	}
	return workloads, nil
}

// FetchLogTail fetches the last tail lines of stdout and stderr for the
// container, demultiplexed into ordered stream-tagged chunks.
func (d *DockerSource) FetchLogTail(ctx context.Context, id string, tail int) ([]model.LogChunk, error) {
	rc, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrWorkloadNotFound, id)
		}
		return nil, fmt.Errorf("fetching logs for %s: %w", id, err)
	}
	defer rc.Close()

	chunks, err := demuxLogStream(rc)
	if err != nil {
		return nil, fmt.Errorf("reading logs for %s: %w", id, err)
	}
	return chunks, nil
}

// workloadFromSummary validates and converts one list entry. Docker reports
// names with a leading slash; the first name, trimmed, is the display name.
func workloadFromSummary(s container.Summary) (model.Workload, bool) {
	name := ""
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	if s.ID == "" || name == "" || s.Image == "" || s.Command == "" || s.Status == "" {
		return model.Workload{}, false
	}
	return model.Workload{
		ID:      s.ID,
		Name:    name,
		Image:   s.Image,
		Command: s.Command,
		Status:  s.Status,
		Labels:  s.Labels,
	}, true
}

// demuxLogStream splits Docker's multiplexed log stream into stream-tagged
// chunks, preserving frame order. stdcopy.StdCopy cannot be used directly
// because it folds the frames into two writers and loses the per-frame tag.
// A stream that does not carry the stdcopy framing (TTY container) is
// returned whole as a single console chunk.
func demuxLogStream(r io.Reader) ([]model.LogChunk, error) {
	const headerLen = 8

	var chunks []model.LogChunk
	var header [headerLen]byte
	for {
		n, err := io.ReadFull(r, header[:])
		if err == io.EOF {
			return chunks, nil
		}
		if err == io.ErrUnexpectedEOF {
			// Trailing bytes shorter than a header: raw output.
			return appendConsole(chunks, header[:n], r)
		}
		if err != nil {
			return chunks, err
		}

		kind, ok := streamKind(stdcopy.StdType(header[0]))
		if !ok || header[1] != 0 || header[2] != 0 || header[3] != 0 {
			// Not stdcopy framing; the container runs with a TTY and
			// the stream is raw.
			return appendConsole(chunks, header[:], r)
		}

		size := binary.BigEndian.Uint32(header[4:])
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return chunks, err
		}
		chunks = append(chunks, model.LogChunk{Stream: kind, Data: data})
	}
}

func appendConsole(chunks []model.LogChunk, prefix []byte, r io.Reader) ([]model.LogChunk, error) {
	rest, err := io.ReadAll(r)
	if err != nil {
		return chunks, err
	}
	data := bytes.Join([][]byte{prefix, rest}, nil)
	if len(data) > 0 {
		chunks = append(chunks, model.LogChunk{Stream: model.StreamConsole, Data: data})
	}
	return chunks, nil
}

func streamKind(t stdcopy.StdType) (model.StreamKind, bool) {
	switch t {
	case stdcopy.Stdin:
		return model.StreamIn, true
	case stdcopy.Stdout:
		return model.StreamOut, true
	case stdcopy.Stderr:
		return model.StreamErr, true
	default:
		return "", false
	}
}
