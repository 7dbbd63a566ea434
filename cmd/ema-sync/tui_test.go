package main

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-sync/core/bubbles"
	"github.com/koscakluka/ema-sync/core/playback"
	"github.com/koscakluka/ema-sync/core/timeline"
	"github.com/m-mizutani/gt"
)

type fakeChatEngine struct {
	sent     []string
	gestures []playback.Gesture
	muted    []bool
	accept   bool
}

func (e *fakeChatEngine) SetMuted(muted bool) {
	e.muted = append(e.muted, muted)
}

func (e *fakeChatEngine) Send(_ context.Context, text string) bool {
	e.sent = append(e.sent, text)
	return e.accept
}

func (e *fakeChatEngine) Unlock(gesture playback.Gesture) {
	e.gestures = append(e.gestures, gesture)
}

func update(t *testing.T, m chatModel, msg tea.Msg) (chatModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	updated, ok := next.(chatModel)
	gt.True(t, ok)
	return updated, cmd
}

func newSizedModel(t *testing.T, e chatEngine) chatModel {
	t.Helper()
	m := newChatModel(context.Background(), e)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	return m
}

func TestChatModelSendsInput(t *testing.T) {
	e := &fakeChatEngine{accept: true}
	m := newSizedModel(t, e)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hello")})
	gt.Equal(t, m.input.Value(), "hello")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	gt.Equal(t, m.input.Value(), "")
	gt.NotNil(t, cmd)

	result := cmd()
	gt.Equal(t, result, tea.Msg(sendResultMsg(true)))
	gt.A(t, e.sent).Length(1)
	gt.Equal(t, e.sent[0], "hello")
}

func TestChatModelIgnoresBlankInput(t *testing.T) {
	e := &fakeChatEngine{accept: true}
	m := newSizedModel(t, e)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	gt.True(t, cmd == nil)
	gt.A(t, e.sent).Length(0)
}

func TestChatModelReportsRejectedSend(t *testing.T) {
	m := newSizedModel(t, &fakeChatEngine{})

	m, _ = update(t, m, sendResultMsg(false))
	gt.S(t, m.View()).Contains("not sent")
}

func TestChatModelUnlocksOnClick(t *testing.T) {
	e := &fakeChatEngine{}
	m := newSizedModel(t, e)

	_, _ = update(t, m, tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	gt.A(t, e.gestures).Length(1)
	gt.Equal(t, e.gestures[0], playback.GesturePointerDown)
}

func TestChatModelRendersSessionState(t *testing.T) {
	m := newSizedModel(t, &fakeChatEngine{})

	m, _ = update(t, m, messagesMsg{
		{ID: "u1", Role: timeline.RoleUser, Text: "hi there", CreatedAt: 1_700_000_000_000},
		{ID: "a1", Role: timeline.RoleAgent, Text: "hello, human", CreatedAt: 1_700_000_001_000},
	})
	m, _ = update(t, m, bubblesMsg{{MessageID: "a1", Role: timeline.RoleAgent, Text: "hello, human", Opacity: 1}})
	m, _ = update(t, m, speakingMsg(true))

	view := m.View()
	gt.S(t, view).Contains("hi there")
	gt.S(t, view).Contains("(hello, human)")
	gt.S(t, view).Contains("speaking")

	m, _ = update(t, m, errorMsg{err: errors.New("audio playback failed")})
	m, _ = update(t, m, disconnectedMsg{})
	view = m.View()
	gt.S(t, view).Contains("audio playback failed")
	gt.S(t, view).Contains("disconnected")
}

func TestChatModelTogglesMute(t *testing.T) {
	e := &fakeChatEngine{}
	m := newSizedModel(t, e)

	m, _ = update(t, m, speakingMsg(true))
	m, _ = update(t, m, levelMsg(0.6))
	gt.S(t, m.View()).Contains("speaking ▮▮▮▯▯")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	gt.S(t, m.View()).Contains("muted")
	gt.S(t, m.View()).Contains("speaking ▯▯▯▯▯")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	gt.S(t, m.View()).NotContains("muted")
	gt.Equal(t, e.muted, []bool{true, false})
}

func TestLevelMeter(t *testing.T) {
	gt.Equal(t, levelMeter(0), "▯▯▯▯▯")
	gt.Equal(t, levelMeter(1), "▮▮▮▮▮")
	gt.Equal(t, levelMeter(0.5), "▮▮▮▯▯")
	gt.Equal(t, levelMeter(3), "▮▮▮▮▮")
}

func TestChatModelQuits(t *testing.T) {
	m := newSizedModel(t, &fakeChatEngine{})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	gt.NotNil(t, cmd)
	gt.Equal(t, cmd(), tea.Msg(tea.Quit()))
}

func TestOpacityColor(t *testing.T) {
	gt.Equal(t, string(opacityColor(0)), "232")
	gt.Equal(t, string(opacityColor(1)), "255")
	gt.Equal(t, string(opacityColor(2)), "255")
	gt.Equal(t, string(opacityColor(-1)), "232")
}

func TestRenderBubblesTruncates(t *testing.T) {
	gt.Equal(t, renderBubbles(nil, 80), "")

	rendered := renderBubbles([]bubbles.Bubble{{Text: "a rather long line of speech that will not fit", Opacity: 1}}, 16)
	gt.S(t, rendered).Contains("…")
	gt.S(t, rendered).NotContains("will not fit")
}
