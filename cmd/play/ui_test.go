package main

import (
	"bytes"
	"testing"

	"ambient-novel/internal/domain"
	"ambient-novel/internal/narration"
	"ambient-novel/internal/narrative"
	"ambient-novel/internal/session"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want command
	}{
		{"", command{act: actAdvance}},
		{"  next ", command{act: actAdvance}},
		{"2", command{act: actChoose, choice: 1}},
		{"0", command{act: actInvalid}},
		{"R", command{act: actRestart}},
		{"m", command{act: actMute}},
		{"v", command{act: actNarration}},
		{"quit", command{act: actQuit}},
		{"?", command{act: actHelp}},
		{"dance", command{act: actInvalid}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseCommand(tt.in), "input %q", tt.in)
	}
}

func TestPrinter(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.snapshot(session.Snapshot{
		SceneID:      "start",
		Title:        "Awakening",
		Environment:  domain.EnvForest,
		ActiveLayers: []string{"birds", "wind"},
		Dialogue:     domain.DialogueLine{Speaker: "You", Text: "Where am I?"},
		Phase:        narrative.PhaseChoicePoint,
		Choices:      []domain.Choice{{Text: "Follow the light"}, {Text: "Explore the darkness"}},
		Cue:          &narration.Cue{Key: "start-1"},
	})
	out := buf.String()
	assert.Contains(t, out, "== Awakening ==")
	assert.Contains(t, out, "[forest: birds, wind]")
	assert.Contains(t, out, "You: Where am I?")
	assert.Contains(t, out, "(narration start-1)")
	assert.Contains(t, out, "2) Explore the darkness")

	buf.Reset()
	p.snapshot(session.Snapshot{
		SceneID:     "start",
		Dialogue:    domain.DialogueLine{Speaker: "Narrator", Text: "..."},
		Phase:       narrative.PhaseEnding,
		EndingTitle: "A New Beginning",
	})
	out = buf.String()
	assert.NotContains(t, out, "==", "the scene header is printed once")
	assert.Contains(t, out, "*** A New Beginning ***")
}
