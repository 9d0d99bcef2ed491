package core

import "time"

// ContainerState is the watcher's view of a container's lifecycle.
type ContainerState string

const (
	StateDiscovered ContainerState = "discovered"
	StateStreaming  ContainerState = "streaming"
	StatePaused     ContainerState = "paused"
	StateStopped    ContainerState = "stopped"
	StateRemoved    ContainerState = "removed"
)

// EventKind is a container lifecycle event from the runtime.
type EventKind string

const (
	EventStart   EventKind = "start"
	EventPause   EventKind = "pause"
	EventUnpause EventKind = "unpause"
	EventStop    EventKind = "stop"
	EventDie     EventKind = "die"
	EventDestroy EventKind = "destroy"
)

// ContainerEvent is a lifecycle notification for a single container.
type ContainerEvent struct {
	ContainerID string    `json:"container_id"`
	Name        string    `json:"name"`
	Kind        EventKind `json:"kind"`
	Time        time.Time `json:"time"`
}

// ContainerHandle describes a container the watcher tracks.
type ContainerHandle struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Image  string         `json:"image"`
	State  ContainerState `json:"state"`
	Chunks uint64         `json:"chunks"`
}
