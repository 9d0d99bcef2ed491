package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/logseer/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	stateStreaming = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stateStopped   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	stateRemoved   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statePaused    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	statusBarH := 2
	inputH := 1
	mainH := a.height - statusBarH - inputH - 2
	listW := a.width/3 - 2
	chatW := a.width - listW - 4

	list := a.renderContainers(listW, mainH)
	listPane := a.paneBox(PaneContainers, " Containers ", list, listW, mainH)

	chat := a.renderChat(chatW, mainH)
	chatPane := a.paneBox(PaneChat, a.chatTitle(), chat, chatW, mainH)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, listPane, chatPane)

	inputLine := ""
	if a.mode == ModeAsk {
		inputLine = a.input.View()
	}

	statusBar := a.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, topRow, inputLine, statusBar)
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderContainers(w, h int) string {
	if len(a.containers) == 0 {
		return dimStyle.Render("no containers")
	}

	var b strings.Builder
	maxVisible := h - 2
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(a.containers) && i-start < maxVisible; i++ {
		c := a.containers[i]
		indicator := stateIndicator(c.State)
		label := c.Name
		if c.Chunks > 0 {
			label = fmt.Sprintf("%s (%d)", c.Name, c.Chunks)
		}
		name := truncate(label, w-6)
		line := fmt.Sprintf(" %s %-*s", indicator, w-6, name)

		if i == a.selectedIdx {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}

func (a App) renderChat(w, h int) string {
	if len(a.chat) == 0 {
		return dimStyle.Render("press / to ask a question")
	}

	var lines []string
	for _, e := range a.chat {
		lines = append(lines, questionStyle.Render("? "+e.Question)+dimStyle.Render(" ["+e.Container+"]"))
		if e.Pending {
			lines = append(lines, dimStyle.Render("thinking..."))
		} else {
			lines = append(lines, wrapText(e.Answer, w)...)
			for i, s := range e.Sources {
				cite := fmt.Sprintf("[%d] %s %.2f %s", i+1, s.FirstTS.Local().Format("15:04:05"), s.Score, s.Snippet)
				lines = append(lines, sourceStyle.Render(truncate(cite, w)))
			}
		}
		lines = append(lines, "")
	}

	visible := h - 2
	end := len(lines) - a.scrollOff
	if end > len(lines) {
		end = len(lines)
	}
	if end < 0 {
		end = 0
	}
	start := end - visible
	if start < 0 {
		start = 0
	}

	return strings.Join(lines[start:end], "\n")
}

func (a App) chatTitle() string {
	return " Chat [" + a.collection + "] "
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	right := "j/k:nav tab:pane /:ask c:collection q:quit"
	if a.mode == ModeAsk {
		right = "enter:send esc:cancel"
	}

	gap := a.width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func stateIndicator(state core.ContainerState) string {
	switch state {
	case core.StateStreaming:
		return stateStreaming.Render("●")
	case core.StatePaused:
		return statePaused.Render("‖")
	case core.StateStopped:
		return stateStopped.Render("○")
	case core.StateRemoved:
		return stateRemoved.Render("✖")
	default:
		return dimStyle.Render("?")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func wrapText(s string, w int) []string {
	if w < 10 {
		w = 10
	}
	var out []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) > w {
				out = append(out, line)
				line = word
				continue
			}
			line += " " + word
		}
		out = append(out, line)
	}
	return out
}
