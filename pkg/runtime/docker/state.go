package docker

import (
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"

	"github.com/modoterra/logseer/pkg/core"
)

// mapContainerState translates a Docker container state into the
// watcher's lifecycle. Running containers are candidates for streaming.
func mapContainerState(state container.ContainerState) core.ContainerState {
	switch state {
	case container.StateRunning:
		return core.StateStreaming
	case container.StatePaused:
		return core.StatePaused
	case container.StateCreated, container.StateRestarting:
		return core.StateDiscovered
	case container.StateExited, container.StateDead:
		return core.StateStopped
	case container.StateRemoving:
		return core.StateRemoved
	default:
		return core.StateDiscovered
	}
}

// mapEventAction translates a Docker event action into a lifecycle event
// kind. Actions outside the tracked set report false.
func mapEventAction(action events.Action) (core.EventKind, bool) {
	switch string(action) {
	case "start":
		return core.EventStart, true
	case "pause":
		return core.EventPause, true
	case "unpause":
		return core.EventUnpause, true
	case "stop":
		return core.EventStop, true
	case "die":
		return core.EventDie, true
	case "destroy":
		return core.EventDestroy, true
	default:
		return "", false
	}
}
