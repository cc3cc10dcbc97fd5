package domain

// GameState is the mutable part of one play session. It is memory-only and
// reset on restart.
type GameState struct {
	CurrentScene  string            `json:"currentScene"`
	VisitedScenes []string          `json:"visitedScenes"`
	Choices       map[string]string `json:"choices"` // scene id -> nextScene chosen from it, last wins
}

// NewGameState creates the initial state for a session starting at entry.
func NewGameState(entry string) GameState {
	return GameState{
		CurrentScene:  entry,
		VisitedScenes: []string{entry},
		Choices:       map[string]string{},
	}
}

// Clone returns a deep copy so transitions never alias the previous state.
func (g GameState) Clone() GameState {
	visited := make([]string, len(g.VisitedScenes))
	copy(visited, g.VisitedScenes)
	choices := make(map[string]string, len(g.Choices))
	for k, v := range g.Choices {
		choices[k] = v
	}
	return GameState{
		CurrentScene:  g.CurrentScene,
		VisitedScenes: visited,
		Choices:       choices,
	}
}
