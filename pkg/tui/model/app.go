package model

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/logseer/pkg/core"
	"github.com/modoterra/logseer/pkg/index"
	"github.com/modoterra/logseer/pkg/transport/uds"
)

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneContainers Pane = iota
	PaneChat
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAsk
)

// chatEntry is one question/answer exchange in the transcript.
type chatEntry struct {
	Question  string
	Answer    string
	Sources   []uds.QuerySource
	Container string
	Pending   bool
}

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	socketPath string
	connected  bool

	// State
	containers  []core.ContainerHandle
	selectedIdx int
	chat        []chatEntry
	collection  string
	scrollOff   int

	// UI
	activePane Pane
	mode       Mode
	input      textinput.Model
	width      int
	height     int

	// Error display
	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	in := textinput.New()
	in.Placeholder = "ask about this container's logs..."
	in.CharLimit = 512

	return App{
		socketPath: socketPath,
		input:      in,
		collection: index.CollectionApprox,
		activePane: PaneContainers,
		mode:       ModeNormal,
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tea.SetWindowTitle("Logseer"),
	)
}

// tickMsg triggers periodic refresh.
type tickMsg time.Time

// connectedMsg indicates successful daemon connection.
type connectedMsg struct{ client *uds.Client }

// containersMsg carries the tracked container set from the daemon.
type containersMsg struct{ containers []core.ContainerHandle }

// answerMsg carries a completed query response.
type answerMsg struct {
	question  string
	container string
	resp      uds.QueryResponse
}

// answerFailedMsg marks a pending question as failed.
type answerFailedMsg struct {
	question string
	err      error
}

// errorMsg carries an error to display.
type errorMsg struct{ err error }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		return connectedMsg{client}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchContainersCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodListContainers, nil)
		if err != nil {
			return errorMsg{err}
		}

		var containers []core.ContainerHandle
		if err := resp.UnmarshalData(&containers); err != nil {
			return errorMsg{err}
		}
		return containersMsg{containers}
	}
}

func queryCmd(client *uds.Client, containerID, question, collection string) tea.Cmd {
	return func() tea.Msg {
		// Two-stage retrieval plus generation can take a while.
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodQuery, uds.QueryRequest{
			ContainerID: containerID,
			Question:    question,
			Collection:  collection,
		})
		if err != nil {
			return answerFailedMsg{question: question, err: err}
		}

		var qr uds.QueryResponse
		if err := resp.UnmarshalData(&qr); err != nil {
			return answerFailedMsg{question: question, err: err}
		}
		return answerMsg{question: question, container: containerID, resp: qr}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.connected = true
		a.statusMsg = "connected"
		return a, tea.Batch(tickCmd(), fetchContainersCmd(a.client))

	case tickMsg:
		if a.client != nil {
			return a, tea.Batch(tickCmd(), fetchContainersCmd(a.client))
		}
		return a, tickCmd()

	case containersMsg:
		a.containers = msg.containers
		if a.selectedIdx >= len(a.containers) {
			a.selectedIdx = max(0, len(a.containers)-1)
		}
		return a, nil

	case answerMsg:
		a.resolvePending(msg.question, func(e *chatEntry) {
			e.Answer = msg.resp.Answer
			e.Sources = msg.resp.Sources
			e.Pending = false
		})
		a.scrollOff = 0
		return a, nil

	case answerFailedMsg:
		a.resolvePending(msg.question, func(e *chatEntry) {
			e.Answer = "error: " + msg.err.Error()
			e.Pending = false
		})
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) resolvePending(question string, fn func(*chatEntry)) {
	for i := len(a.chat) - 1; i >= 0; i-- {
		if a.chat[i].Pending && a.chat[i].Question == question {
			fn(&a.chat[i])
			return
		}
	}
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Ask mode: the input owns most keys.
	if a.mode == ModeAsk {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.input.SetValue("")
			a.input.Blur()
			return a, nil
		case "enter":
			return a.submitQuestion()
		default:
			var cmd tea.Cmd
			a.input, cmd = a.input.Update(msg)
			return a, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.activePane == PaneContainers && len(a.containers) > 0 {
			a.selectedIdx = min(a.selectedIdx+1, len(a.containers)-1)
		} else if a.activePane == PaneChat && a.scrollOff > 0 {
			a.scrollOff--
		}
	case "k", "up":
		if a.activePane == PaneContainers && a.selectedIdx > 0 {
			a.selectedIdx--
		} else if a.activePane == PaneChat {
			a.scrollOff++
		}

	case "tab":
		a.activePane = (a.activePane + 1) % 2

	case "c":
		a.collection = nextCollection(a.collection)
		a.statusMsg = "collection: " + a.collection

	case "/", "a", "enter":
		if len(a.containers) == 0 {
			a.statusMsg = "no containers to ask about"
			return a, nil
		}
		a.mode = ModeAsk
		a.input.Focus()
		return a, textinput.Blink
	}

	return a, nil
}

func (a App) submitQuestion() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(a.input.Value())
	if question == "" {
		return a, nil
	}
	if a.client == nil {
		a.statusMsg = "not connected"
		return a, nil
	}
	target := a.selectedContainer()
	if target == nil {
		a.statusMsg = "no container selected"
		return a, nil
	}

	a.mode = ModeNormal
	a.input.SetValue("")
	a.input.Blur()
	a.chat = append(a.chat, chatEntry{
		Question:  question,
		Container: target.Name,
		Pending:   true,
	})
	a.scrollOff = 0
	a.activePane = PaneChat

	return a, queryCmd(a.client, target.ID, question, a.collection)
}

func (a App) selectedContainer() *core.ContainerHandle {
	if a.selectedIdx < len(a.containers) {
		return &a.containers[a.selectedIdx]
	}
	return nil
}

func nextCollection(cur string) string {
	switch cur {
	case index.CollectionApprox:
		return index.CollectionExact
	case index.CollectionExact:
		return index.CollectionErrors
	default:
		return index.CollectionApprox
	}
}
