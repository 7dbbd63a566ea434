package main

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-sync/core/bubbles"
	"github.com/koscakluka/ema-sync/core/playback"
	"github.com/koscakluka/ema-sync/core/timeline"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

// chromeHeight is the number of lines below the transcript: bubbles,
// status and input.
const chromeHeight = 4

// meterWidth is the number of cells of the speech level meter.
const meterWidth = 5

type chatEngine interface {
	Send(ctx context.Context, text string) bool
	Unlock(gesture playback.Gesture)
	SetMuted(muted bool)
}

type (
	messagesMsg     []timeline.Message
	bubblesMsg      []bubbles.Bubble
	speakingMsg     bool
	levelMsg        float64
	pendingMsg      bool
	sendResultMsg   bool
	disconnectedMsg struct{}
	errorMsg        struct{ err error }
)

var (
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	localStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	speakerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

type chatModel struct {
	ctx    context.Context
	engine chatEngine

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int

	messages     []timeline.Message
	bubbles      []bubbles.Bubble
	speaking     bool
	level        float64
	muted        bool
	pending      bool
	disconnected bool
	notice       string
	lastErr      error
}

func newChatModel(ctx context.Context, e chatEngine) chatModel {
	input := textinput.New()
	input.Placeholder = "Say something..."
	input.Prompt = "> "
	input.Focus()

	return chatModel{ctx: ctx, engine: e, input: input}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		height := max(msg.Height-chromeHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.notice = ""
			return m, m.send(text)
		case tea.KeyCtrlT:
			m.muted = !m.muted
			m.engine.SetMuted(m.muted)
			if m.muted {
				m.level = 0
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress {
			m.engine.Unlock(playback.GesturePointerDown)
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case messagesMsg:
		m.messages = msg
		m.refreshTranscript()
		return m, nil

	case bubblesMsg:
		m.bubbles = msg
		return m, nil

	case speakingMsg:
		m.speaking = bool(msg)
		return m, nil

	case levelMsg:
		m.level = float64(msg)
		return m, nil

	case pendingMsg:
		m.pending = bool(msg)
		return m, nil

	case sendResultMsg:
		if !msg {
			m.notice = "not sent"
		}
		return m, nil

	case disconnectedMsg:
		m.disconnected = true
		return m, nil

	case errorMsg:
		m.lastErr = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) send(text string) tea.Cmd {
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return sendResultMsg(e.Send(ctx, text))
	}
}

func (m *chatModel) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.messages, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "connecting..."
	}

	return strings.Join([]string{
		m.viewport.View(),
		renderBubbles(m.bubbles, m.width),
		m.status(),
		m.input.View(),
	}, "\n")
}

func (m chatModel) status() string {
	var parts []string
	switch {
	case m.disconnected:
		parts = append(parts, errorStyle.Render("disconnected"))
	case m.speaking:
		parts = append(parts, speakerStyle.Render("speaking "+levelMeter(m.level)))
	case m.pending:
		parts = append(parts, statusStyle.Render("waiting for reply..."))
	}
	if m.muted {
		parts = append(parts, statusStyle.Render("muted (ctrl+t)"))
	}
	if m.notice != "" {
		parts = append(parts, statusStyle.Render(m.notice))
	}
	if m.lastErr != nil {
		parts = append(parts, errorStyle.Render(m.lastErr.Error()))
	}
	return strings.Join(parts, "  ")
}

func renderTranscript(messages []timeline.Message, width int) string {
	wrapWidth := max(width-2, 10)

	var b strings.Builder
	for i, message := range messages {
		if i > 0 {
			b.WriteString("\n")
		}

		speaker := agentStyle.Render("ema")
		if message.Role == timeline.RoleUser {
			speaker = userStyle.Render("you")
		}
		b.WriteString(speaker)
		b.WriteString(statusStyle.Render(" " + message.Time().Format("15:04")))
		if message.Local {
			b.WriteString(localStyle.Render(" sending"))
		}
		b.WriteString("\n")
		b.WriteString(wordwrap.String(message.Text, wrapWidth))
		b.WriteString("\n")
	}
	return b.String()
}

// renderBubbles shows the floating bubbles on one line, each dimmed by its
// opacity.
func renderBubbles(visible []bubbles.Bubble, width int) string {
	if len(visible) == 0 {
		return ""
	}

	each := max(width/len(visible)-2, 4)
	rendered := make([]string, 0, len(visible))
	for _, bubble := range visible {
		text := truncate.StringWithTail(strings.ReplaceAll(bubble.Text, "\n", " "), uint(each), "…")
		rendered = append(rendered, lipgloss.NewStyle().
			Foreground(opacityColor(bubble.Opacity)).
			Render("("+text+")"))
	}
	return strings.Join(rendered, " ")
}

// levelMeter draws level as a bar of meterWidth cells.
func levelMeter(level float64) string {
	level = min(max(level, 0), 1)
	filled := int(math.Round(level * meterWidth))
	return strings.Repeat("▮", filled) + strings.Repeat("▯", meterWidth-filled)
}

// opacityColor maps opacity onto the 24 step ANSI grayscale ramp.
func opacityColor(opacity float64) lipgloss.Color {
	opacity = min(max(opacity, 0), 1)
	return lipgloss.Color(strconv.Itoa(232 + int(opacity*23)))
}
