// Package docker adapts the Docker Engine API to the runtime boundary:
// container listing, lifecycle events, and log following.
package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/moby/moby/client"

	"github.com/modoterra/logseer/pkg/core"
)

// Runtime implements core.Runtime against a Docker daemon.
type Runtime struct {
	cli    *client.Client
	logger *slog.Logger
}

// New connects to the Docker daemon using the standard environment
// settings (DOCKER_HOST etc).
func New(logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Runtime{cli: cli, logger: logger}, nil
}

// Close releases the underlying client.
func (r *Runtime) Close() error {
	return r.cli.Close()
}

// List returns all containers, running or not.
func (r *Runtime) List(ctx context.Context) ([]core.ContainerHandle, error) {
	summaries, err := r.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}
	handles := make([]core.ContainerHandle, 0, len(summaries))
	for _, s := range summaries {
		handles = append(handles, core.ContainerHandle{
			ID:    s.ID,
			Name:  containerName(s.Names),
			Image: s.Image,
			State: mapContainerState(s.State),
		})
	}
	return handles, nil
}

// Events streams container lifecycle events. Actions outside the tracked
// set are dropped.
func (r *Runtime) Events(ctx context.Context) (<-chan core.ContainerEvent, <-chan error) {
	out := make(chan core.ContainerEvent)
	errs := make(chan error, 1)

	opts := events.ListOptions{
		Filters: filters.NewArgs(filters.Arg("type", "container")),
	}
	msgs, msgErrs := r.cli.Events(ctx, opts)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				kind, ok := mapEventAction(msg.Action)
				if !ok {
					continue
				}
				ev := core.ContainerEvent{
					ContainerID: msg.Actor.ID,
					Name:        msg.Actor.Attributes["name"],
					Kind:        kind,
					Time:        time.Unix(0, msg.TimeNano),
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case err := <-msgErrs:
				// A nil or closed error stream still means the event
				// stream is over; the watcher must see an error to
				// reconnect.
				if err == nil {
					err = io.EOF
				}
				errs <- err
				return
			}
		}
	}()
	return out, errs
}

// FollowLogs streams a container's stdout and stderr from now on,
// stripping the Docker timestamp prefix into LogLine.Time. The channel
// closes when the stream ends.
func (r *Runtime) FollowLogs(ctx context.Context, containerID string) (<-chan core.LogLine, error) {
	inspect, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("container inspect %s: %w", containerID, err)
	}
	tty := inspect.Config != nil && inspect.Config.Tty

	rc, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
		Tail:       "0",
	})
	if err != nil {
		return nil, fmt.Errorf("container logs %s: %w", containerID, err)
	}

	var reader io.Reader = rc
	if !tty {
		// Multiplexed stream: demux stdout and stderr into one pipe.
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, rc)
			pw.CloseWithError(err)
		}()
		reader = pr
	}

	out := make(chan core.LogLine, 256)
	go func() {
		defer close(out)
		defer rc.Close()

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			ts, text := splitTimestamp(scanner.Text())
			line := core.LogLine{
				ContainerID: containerID,
				Time:        ts,
				Text:        text,
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			r.logger.Warn("log stream ended", "container", containerID, "err", err)
		}
	}()
	return out, nil
}

// splitTimestamp parses the RFC3339Nano prefix Docker adds when
// Timestamps is on. Lines without one keep their full text and get the
// current time.
func splitTimestamp(raw string) (time.Time, string) {
	ts, text, ok := strings.Cut(raw, " ")
	if ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return parsed, text
		}
	}
	return time.Now(), raw
}

// containerName strips the leading slash Docker puts on primary names.
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
