package domain

import (
	"errors"
	"fmt"
)

// Application-wide standard errors
var (
	// Story data / configuration
	ErrInvalidStory = errors.New("invalid story data")

	// Traversal
	ErrUnknownScene  = errors.New("unknown scene")
	ErrInvalidChoice = errors.New("invalid choice")

	// Sessions
	ErrSessionNotFound = errors.New("session not found")

	// Audio
	ErrEngineClosed = errors.New("audio engine closed")
)

// UnknownSceneError is returned when a scene id does not resolve in the store.
type UnknownSceneError struct {
	SceneID string
}

func (e *UnknownSceneError) Error() string {
	return fmt.Sprintf("unknown scene %q", e.SceneID)
}

func (e *UnknownSceneError) Is(target error) bool {
	return target == ErrUnknownScene
}

// InvalidChoiceError is returned when a transition target is not one of the
// current scene's declared choices.
type InvalidChoiceError struct {
	FromScene string
	NextScene string
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("scene %q has no choice leading to %q", e.FromScene, e.NextScene)
}

func (e *InvalidChoiceError) Is(target error) bool {
	return target == ErrInvalidChoice
}
