package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

var reqCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UnmarshalData decodes the message payload into v.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("message %s has no data", m.ID)
	}
	return json.Unmarshal(m.Data, v)
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	id := fmt.Sprintf("req-%d", reqCounter.Add(1))
	raw, err := encodeData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeReq,
		ID:     id,
		Method: method,
		Data:   raw,
	}, nil
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	raw, err := encodeData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Data:   raw,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	id := fmt.Sprintf("evt-%d", reqCounter.Add(1))
	raw, err := encodeData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeEvt,
		ID:     id,
		Method: method,
		Data:   raw,
	}, nil
}

func encodeData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Methods
const (
	MethodPing           = "Ping"
	MethodQuery          = "Query"
	MethodListContainers = "ListContainers"
	MethodStats          = "Stats"

	EventContainersDelta = "containers.delta"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version,omitempty"`
}

// QueryRequest asks a question about one container's logs.
type QueryRequest struct {
	ContainerID string `json:"container_id"`
	Question    string `json:"question"`
	K           int    `json:"k,omitempty"`
	Collection  string `json:"collection,omitempty"`
}

// QuerySource cites one chunk that grounded the answer.
type QuerySource struct {
	ChunkID     string    `json:"chunk_id"`
	ContainerID string    `json:"container_id"`
	FirstTS     time.Time `json:"first_ts"`
	LastTS      time.Time `json:"last_ts"`
	Snippet     string    `json:"snippet"`
	Score       float64   `json:"score"`
}

// QueryResponse is the generated answer with its sources in relevance
// order.
type QueryResponse struct {
	Answer  string        `json:"answer"`
	Sources []QuerySource `json:"sources"`
}

// StatsResponse reports ingestion and index counters.
type StatsResponse struct {
	Containers    int    `json:"containers"`
	Streaming     int    `json:"streaming"`
	ChunksIndexed uint64 `json:"chunks_indexed"`
	ErrorChunks   uint64 `json:"error_chunks"`
	Dropped       uint64 `json:"dropped"`
	Searches      uint64 `json:"searches"`
	Purged        uint64 `json:"purged_containers"`
}
