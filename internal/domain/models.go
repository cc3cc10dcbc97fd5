package domain

// Emotion tags a dialogue line for presentation and narration style only.
type Emotion string

const (
	EmotionNeutral Emotion = "neutral"
	EmotionHappy   Emotion = "happy"
	EmotionSad     Emotion = "sad"
	EmotionWorried Emotion = "worried"
	EmotionHopeful Emotion = "hopeful"
)

// Impact classifies a choice for presentation. It never affects traversal.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

// EndingType is required on ending scenes and forbidden elsewhere.
type EndingType string

const (
	EndingGood    EndingType = "good"
	EndingBad     EndingType = "bad"
	EndingNeutral EndingType = "neutral"
)

// Vec3 is an opaque presentation coordinate (camera position/target).
type Vec3 [3]float64

// DialogueLine is one line of a scene's sequential script.
type DialogueLine struct {
	Speaker string  `json:"speaker" yaml:"speaker" validate:"required"`
	Text    string  `json:"text" yaml:"text" validate:"required"`
	Emotion Emotion `json:"emotion,omitempty" yaml:"emotion,omitempty" validate:"omitempty,oneof=neutral happy sad worried hopeful"`
}

// Mood returns the line emotion, defaulting to neutral.
func (l DialogueLine) Mood() Emotion {
	if l.Emotion == "" {
		return EmotionNeutral
	}
	return l.Emotion
}

// Choice is a labelled edge from one scene to another.
type Choice struct {
	Text      string `json:"text" yaml:"text" validate:"required"`
	NextScene string `json:"nextScene" yaml:"nextScene" validate:"required"`
	Impact    Impact `json:"impact,omitempty" yaml:"impact,omitempty" validate:"omitempty,oneof=positive negative neutral"`
}

// Scene is a node of the story graph. Scenes are immutable once loaded into a store.
type Scene struct {
	ID             string         `json:"id" yaml:"id" validate:"required"`
	Title          string         `json:"title" yaml:"title"`
	Description    string         `json:"description" yaml:"description"`
	Dialogue       []DialogueLine `json:"dialogue" yaml:"dialogue" validate:"min=1,dive"`
	Choices        []Choice       `json:"choices,omitempty" yaml:"choices,omitempty" validate:"dive"`
	Environment    Environment    `json:"environment" yaml:"environment" validate:"required,environment"`
	CameraPosition Vec3           `json:"cameraPosition" yaml:"cameraPosition"`
	CameraTarget   Vec3           `json:"cameraTarget" yaml:"cameraTarget"`
	IsEnding       bool           `json:"isEnding,omitempty" yaml:"isEnding,omitempty"`
	EndingType     EndingType     `json:"endingType,omitempty" yaml:"endingType,omitempty" validate:"omitempty,oneof=good bad neutral"`
}

// LastLine is the index of the final dialogue line.
func (s *Scene) LastLine() int {
	return len(s.Dialogue) - 1
}

// HasChoice reports whether nextScene is one of the scene's declared edges.
func (s *Scene) HasChoice(nextScene string) bool {
	for _, c := range s.Choices {
		if c.NextScene == nextScene {
			return true
		}
	}
	return false
}
