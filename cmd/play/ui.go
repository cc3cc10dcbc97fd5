package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"ambient-novel/internal/narrative"
	"ambient-novel/internal/session"

	"github.com/fatih/color"
)

type action int

const (
	actAdvance action = iota
	actChoose
	actRestart
	actMute
	actNarration
	actQuit
	actHelp
	actInvalid
)

type command struct {
	act    action
	choice int
}

// parseCommand reads one input line. An empty line advances the dialogue,
// a number picks a choice.
func parseCommand(line string) command {
	line = strings.TrimSpace(strings.ToLower(line))
	switch line {
	case "", "n", "next":
		return command{act: actAdvance}
	case "r", "restart":
		return command{act: actRestart}
	case "m", "mute":
		return command{act: actMute}
	case "v", "voice":
		return command{act: actNarration}
	case "q", "quit", "exit":
		return command{act: actQuit}
	case "?", "h", "help":
		return command{act: actHelp}
	}
	if n, err := strconv.Atoi(line); err == nil && n > 0 {
		return command{act: actChoose, choice: n - 1}
	}
	return command{act: actInvalid}
}

type printer struct {
	w         io.Writer
	title     *color.Color
	speaker   *color.Color
	choice    *color.Color
	ending    *color.Color
	muted     *color.Color
	lastScene string
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:       w,
		title:   color.New(color.FgCyan, color.Bold),
		speaker: color.New(color.FgYellow),
		choice:  color.New(color.FgGreen),
		ending:  color.New(color.FgMagenta, color.Bold),
		muted:   color.New(color.Faint),
	}
}

func (p *printer) help() {
	fmt.Fprintln(p.w, "Enter: next line · 1-9: choose · r: restart · m: mute · v: narration · q: quit")
}

func (p *printer) snapshot(s session.Snapshot) {
	if s.SceneID != p.lastScene {
		p.lastScene = s.SceneID
		fmt.Fprintln(p.w)
		p.title.Fprintf(p.w, "== %s ==\n", s.Title)
		p.muted.Fprintf(p.w, "%s  [%s: %s]\n", s.Description, s.Environment, strings.Join(s.ActiveLayers, ", "))
	}

	p.speaker.Fprintf(p.w, "%s: ", s.Dialogue.Speaker)
	fmt.Fprintln(p.w, s.Dialogue.Text)
	if s.Cue != nil {
		p.muted.Fprintf(p.w, "   (narration %s)\n", s.Cue.Key)
	}

	switch s.Phase {
	case narrative.PhaseChoicePoint:
		for i, c := range s.Choices {
			p.choice.Fprintf(p.w, "  %d) %s\n", i+1, c.Text)
		}
	case narrative.PhaseEnding:
		p.ending.Fprintf(p.w, "\n*** %s ***\n", s.EndingTitle)
		fmt.Fprintln(p.w, "Press r to play again.")
	}
}

func (p *printer) status(format string, args ...any) {
	p.muted.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) fail(err error) {
	color.New(color.FgRed).Fprintf(p.w, "%v\n", err)
}
