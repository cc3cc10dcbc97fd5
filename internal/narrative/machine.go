// Package narrative implements traversal of the story graph. Every operation
// takes a State and returns a new one; the input is never modified.
package narrative

import (
	"ambient-novel/internal/domain"
)

// Phase is the coarse position of a session inside the current scene.
type Phase string

const (
	PhaseDialogue    Phase = "mid-dialogue"
	PhaseChoicePoint Phase = "at-choice-point"
	PhaseEnding      Phase = "at-ending"
)

// State is the game state plus the dialogue cursor, which is display state
// local to the session and reset whenever the scene changes.
type State struct {
	domain.GameState
	Line int `json:"line"`
}

// SceneSource resolves scene ids. *storygraph.Store satisfies it.
type SceneSource interface {
	Scene(id string) (*domain.Scene, error)
	Entry() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithStrictChoices controls whether Choose only accepts targets declared by
// the current scene. Strict mode is on by default.
func WithStrictChoices(strict bool) Option {
	return func(m *Machine) { m.strict = strict }
}

// Machine holds no mutable state and is safe for concurrent use.
type Machine struct {
	scenes SceneSource
	strict bool
}

func New(scenes SceneSource, opts ...Option) *Machine {
	m := &Machine{scenes: scenes, strict: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Strict reports whether choices are validated against the current scene.
func (m *Machine) Strict() bool {
	return m.strict
}

// Start returns the initial state: entry scene, line 0.
func (m *Machine) Start() State {
	return State{GameState: domain.NewGameState(m.scenes.Entry())}
}

// Restart discards all progress. It is the only way out of an ending.
func (m *Machine) Restart() State {
	return m.Start()
}

// CurrentScene resolves state.CurrentScene.
func (m *Machine) CurrentScene(state State) (*domain.Scene, error) {
	return m.scenes.Scene(state.CurrentScene)
}

// AdvanceLine moves the cursor one line forward. At the last line it is a no-op.
func (m *Machine) AdvanceLine(state State) (State, error) {
	sc, err := m.CurrentScene(state)
	if err != nil {
		return state, err
	}
	next := state.copy()
	if next.Line < sc.LastLine() {
		next.Line++
	}
	// A cursor past the end (e.g. a hand-built state) is clamped back.
	if next.Line > sc.LastLine() {
		next.Line = sc.LastLine()
	}
	return next, nil
}

// Choose moves to nextSceneID. The target must exist and, in strict mode, be
// one of the current scene's choices. An ending is never left by a choice,
// whatever the mode; only Restart leaves it. On error the input state is
// returned.
func (m *Machine) Choose(state State, nextSceneID string) (State, error) {
	cur, err := m.CurrentScene(state)
	if err != nil {
		return state, err
	}
	if _, err := m.scenes.Scene(nextSceneID); err != nil {
		return state, err
	}
	if cur.IsEnding || (m.strict && !cur.HasChoice(nextSceneID)) {
		return state, &domain.InvalidChoiceError{FromScene: cur.ID, NextScene: nextSceneID}
	}

	next := state.copy()
	next.Choices[cur.ID] = nextSceneID
	next.CurrentScene = nextSceneID
	next.VisitedScenes = append(next.VisitedScenes, nextSceneID)
	next.Line = 0
	return next, nil
}

// IsChoicePoint is true at the last line of a scene that offers choices.
func (m *Machine) IsChoicePoint(state State) bool {
	sc, err := m.CurrentScene(state)
	if err != nil {
		return false
	}
	return state.Line >= sc.LastLine() && len(sc.Choices) > 0
}

// IsTerminal is true at the last line of an ending scene.
func (m *Machine) IsTerminal(state State) bool {
	sc, err := m.CurrentScene(state)
	if err != nil {
		return false
	}
	return sc.IsEnding && state.Line >= sc.LastLine()
}

// Phase classifies state. Unresolvable scenes report PhaseDialogue.
func (m *Machine) Phase(state State) Phase {
	switch {
	case m.IsTerminal(state):
		return PhaseEnding
	case m.IsChoicePoint(state):
		return PhaseChoicePoint
	default:
		return PhaseDialogue
	}
}

func (s State) copy() State {
	return State{GameState: s.GameState.Clone(), Line: s.Line}
}
