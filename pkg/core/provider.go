package core

import "context"

// Runtime is the container runtime boundary. The Docker adapter implements
// it; tests substitute fakes.
type Runtime interface {
	// List returns all containers the runtime currently knows about,
	// running or not.
	List(ctx context.Context) ([]ContainerHandle, error)

	// Events streams container lifecycle events until ctx is cancelled.
	// A value on the error channel means the stream is broken and must be
	// re-established by the caller.
	Events(ctx context.Context) (<-chan ContainerEvent, <-chan error)

	// FollowLogs streams log lines for one container from now on. The
	// returned channel closes when the container stops or ctx is
	// cancelled. Lines carry container ID, timestamp, and text; sequence
	// numbers and levels are assigned downstream.
	FollowLogs(ctx context.Context, containerID string) (<-chan LogLine, error)
}
