// Package narration addresses prerecorded narration for dialogue lines. A line
// without a recording is simply not narrated.
package narration

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"ambient-novel/internal/domain"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Key is the asset address of a line: "<sceneId>-<lineIndex>".
func Key(sceneID string, line int) string {
	return fmt.Sprintf("%s-%d", sceneID, line)
}

var styles = map[domain.Emotion]string{
	domain.EmotionNeutral: "Read in a calm, neutral tone.",
	domain.EmotionHappy:   "Read in a friendly, upbeat tone with a slightly faster pace.",
	domain.EmotionSad:     "Read slowly with a soft, melancholic tone.",
	domain.EmotionWorried: "Read with a hushed, tense tone and slower pace.",
	domain.EmotionHopeful: "Read in a warm, gentle tone that lifts toward the end.",
}

// StylePrompt is the reading direction handed to a speech synthesizer.
func StylePrompt(e domain.Emotion) string {
	if s, ok := styles[e]; ok {
		return s
	}
	return styles[domain.EmotionNeutral]
}

// Cue is everything a narration player needs for one line.
type Cue struct {
	SceneID string         `json:"sceneId"`
	Line    int            `json:"lineIndex"`
	Key     string         `json:"key"`
	Text    string         `json:"text"`
	Emotion domain.Emotion `json:"emotion"`
	Style   string         `json:"style"`
	URL     string         `json:"url"`
}

// AssetChecker reports whether a named asset exists. *assets.Loader satisfies it.
type AssetChecker interface {
	Exists(ctx context.Context, name string) bool
}

type presence int

const (
	probing presence = iota
	recorded
	missing
)

const (
	defaultProbeTimeout = 5 * time.Second
	// Missing recordings are looked up again after this long.
	defaultMissingTTL = time.Minute
)

// Narrator resolves cues against recorded assets named "<key>.mp3". Asset
// existence is kept in an index; Cue only reads it and never waits for a
// lookup. Unknown keys are probed in the background.
type Narrator struct {
	assets    AssetChecker
	urlPrefix string
	index     *cache.Cache

	probeTimeout time.Duration
	missingTTL   time.Duration
	probes       sync.WaitGroup

	logger *zap.Logger
}

// Option configures a Narrator.
type Option func(*Narrator)

// WithProbeTimeout bounds a single background existence check.
func WithProbeTimeout(d time.Duration) Option {
	return func(n *Narrator) { n.probeTimeout = d }
}

// WithMissingTTL sets how long a missing recording is remembered.
func WithMissingTTL(d time.Duration) Option {
	return func(n *Narrator) { n.missingTTL = d }
}

// NewNarrator creates a Narrator; urlPrefix is prepended to asset names to
// build the public URL (e.g. "/narration").
func NewNarrator(assets AssetChecker, urlPrefix string, logger *zap.Logger, opts ...Option) *Narrator {
	n := &Narrator{
		assets:       assets,
		urlPrefix:    urlPrefix,
		probeTimeout: defaultProbeTimeout,
		missingTTL:   defaultMissingTTL,
		logger:       logger.Named("Narrator"),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.index = cache.New(cache.NoExpiration, time.Minute)
	return n
}

// Cue returns the cue for line of scene, or false when the line is out of
// range, has no recording, or has not been looked up yet.
func (n *Narrator) Cue(_ context.Context, scene *domain.Scene, line int) (Cue, bool) {
	if scene == nil || line < 0 || line >= len(scene.Dialogue) || n.assets == nil {
		return Cue{}, false
	}
	key := Key(scene.ID, line)
	v, ok := n.index.Get(key)
	if !ok {
		n.probe(key)
		return Cue{}, false
	}
	if v.(presence) != recorded {
		return Cue{}, false
	}
	dl := scene.Dialogue[line]
	return Cue{
		SceneID: scene.ID,
		Line:    line,
		Key:     key,
		Text:    dl.Text,
		Emotion: dl.Mood(),
		Style:   StylePrompt(dl.Mood()),
		URL:     path.Join(n.urlPrefix, key+".mp3"),
	}, true
}

// probe starts one background lookup per key.
func (n *Narrator) probe(key string) {
	if err := n.index.Add(key, probing, n.probeTimeout+time.Second); err != nil {
		return
	}
	n.probes.Add(1)
	go func() {
		defer n.probes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.probeTimeout)
		defer cancel()
		n.lookup(ctx, key)
	}()
}

func (n *Narrator) lookup(ctx context.Context, key string) bool {
	if n.assets.Exists(ctx, key+".mp3") {
		n.index.Set(key, recorded, cache.NoExpiration)
		return true
	}
	n.index.Set(key, missing, n.missingTTL)
	n.logger.Debug("No narration recorded", zap.String("key", key))
	return false
}

// Warm looks up every line of scenes and blocks until done or ctx ends. It
// returns the number of recorded lines found.
func (n *Narrator) Warm(ctx context.Context, scenes []*domain.Scene) int {
	if n.assets == nil {
		return 0
	}
	found := 0
	for _, sc := range scenes {
		for i := range sc.Dialogue {
			if ctx.Err() != nil {
				return found
			}
			if n.lookup(ctx, Key(sc.ID, i)) {
				found++
			}
		}
	}
	n.logger.Info("Narration index warmed", zap.Int("recorded", found))
	return found
}

// Wait blocks until every background lookup started so far has finished.
func (n *Narrator) Wait() {
	n.probes.Wait()
}

// SceneCues lists the cues of every known recorded line of scene in order.
func (n *Narrator) SceneCues(ctx context.Context, scene *domain.Scene) []Cue {
	var out []Cue
	for i := range scene.Dialogue {
		if c, ok := n.Cue(ctx, scene, i); ok {
			out = append(out, c)
		}
	}
	return out
}
