package session

import (
	"context"

	"ambient-novel/internal/domain"
	"ambient-novel/internal/narration"
	"ambient-novel/internal/narrative"
)

// Snapshot is the renderer's view of a session.
type Snapshot struct {
	SessionID      string              `json:"sessionId"`
	SceneID        string              `json:"sceneId"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Environment    domain.Environment  `json:"environment"`
	CameraPosition domain.Vec3         `json:"cameraPosition"`
	CameraTarget   domain.Vec3         `json:"cameraTarget"`
	Line           int                 `json:"lineIndex"`
	LineCount      int                 `json:"lineCount"`
	Dialogue       domain.DialogueLine `json:"dialogue"`
	Choices        []domain.Choice     `json:"choices,omitempty"`
	Phase          narrative.Phase     `json:"phase"`
	IsEnding       bool                `json:"isEnding"`
	EndingType     domain.EndingType   `json:"endingType,omitempty"`
	EndingTitle    string              `json:"endingTitle,omitempty"`
	VisitedScenes  []string            `json:"visitedScenes"`
	Muted          bool                `json:"muted"`
	Narration      bool                `json:"narration"`
	Cue            *narration.Cue      `json:"cue,omitempty"`
	ActiveLayers   []string            `json:"activeLayers"`

	scene *domain.Scene
}

func (s *Session) snapshotLocked() (Snapshot, error) {
	sc, err := s.deps.Machine.CurrentScene(s.state)
	if err != nil {
		return Snapshot{}, err
	}
	line := s.state.Line
	if line > sc.LastLine() {
		line = sc.LastLine()
	}
	visited := make([]string, len(s.state.VisitedScenes))
	copy(visited, s.state.VisitedScenes)

	snap := Snapshot{
		SessionID:      s.id,
		SceneID:        sc.ID,
		Title:          sc.Title,
		Description:    sc.Description,
		Environment:    sc.Environment,
		CameraPosition: sc.CameraPosition,
		CameraTarget:   sc.CameraTarget,
		Line:           line,
		LineCount:      len(sc.Dialogue),
		Dialogue:       sc.Dialogue[line],
		Phase:          s.deps.Machine.Phase(s.state),
		IsEnding:       sc.IsEnding,
		EndingType:     sc.EndingType,
		VisitedScenes:  visited,
		Muted:          s.ambient.Muted(),
		Narration:      s.narration,
		ActiveLayers:   s.ambient.ActiveKeys(),
		scene:          sc,
	}
	switch snap.Phase {
	case narrative.PhaseChoicePoint:
		snap.Choices = append([]domain.Choice(nil), sc.Choices...)
	case narrative.PhaseEnding:
		snap.EndingTitle = EndingTitle(sc.EndingType)
	}
	return snap, nil
}

// withCue attaches the narration cue of the snapshot's line. It runs without
// the session lock.
func (s *Session) withCue(ctx context.Context, snap Snapshot) Snapshot {
	if !snap.Narration || s.deps.Narrator == nil || snap.scene == nil {
		return snap
	}
	if cue, ok := s.deps.Narrator.Cue(ctx, snap.scene, snap.Line); ok {
		snap.Cue = &cue
	}
	return snap
}
