package output

import (
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"go.uber.org/zap"
)

// Speaker plays a stereo 16-bit PCM reader on the default output device.
type Speaker struct {
	player *audio.Player
	logger *zap.Logger
}

// NewSpeaker prepares playback of src. Only one sample rate can be used per
// process.
func NewSpeaker(src io.Reader, sampleRate int, logger *zap.Logger) (*Speaker, error) {
	ctx := audio.CurrentContext()
	if ctx == nil {
		ctx = audio.NewContext(sampleRate)
	} else if ctx.SampleRate() != sampleRate {
		return nil, fmt.Errorf("audio context already runs at %d Hz, want %d", ctx.SampleRate(), sampleRate)
	}
	p, err := ctx.NewPlayer(src)
	if err != nil {
		return nil, fmt.Errorf("create audio player: %w", err)
	}
	p.SetBufferSize(100 * time.Millisecond)
	return &Speaker{player: p, logger: logger.Named("Speaker")}, nil
}

// Start begins pulling audio. It can serve as an engine resume hook.
func (s *Speaker) Start() error {
	if !s.player.IsPlaying() {
		s.player.Play()
		s.logger.Debug("Speaker started")
	}
	return nil
}

func (s *Speaker) Stop() {
	s.player.Pause()
}
