// Package assets fetches named audio assets from a directory or an HTTP base
// URL and decodes them into mono samples at the caller's sample rate.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"go.uber.org/zap"
)

var (
	ErrAssetNotFound     = errors.New("asset not found")
	ErrInvalidAssetName  = errors.New("invalid asset name")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Clip is a decoded mono clip.
type Clip struct {
	Samples    []float32
	SampleRate int
}

func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Loader resolves asset names against its base: a local directory, or an
// http(s) URL under which names are fetched with GET.
type Loader struct {
	base     string
	remote   bool
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) { l.client = c }
}

// WithMaxBytes caps the encoded size of a single asset.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *Loader) { l.maxBytes = n }
}

func NewLoader(base string, logger *zap.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		base:     base,
		remote:   strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://"),
		client:   &http.Client{Timeout: 15 * time.Second},
		maxBytes: 64 << 20,
		logger:   logger.Named("AssetLoader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches name and decodes it resampled to sampleRate.
func (l *Loader) Load(ctx context.Context, name string, sampleRate int) (*Clip, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(path.Ext(clean)) != ".mp3" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	rc, err := l.open(ctx, clean)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	start := time.Now()
	encoded, err := io.ReadAll(io.LimitReader(rc, l.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	clip, err := DecodeMP3(bytes.NewReader(encoded), sampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	l.logger.Debug("Asset decoded",
		zap.String("asset", name),
		zap.Duration("length", clip.Duration()),
		zap.Duration("took", time.Since(start)),
	)
	return clip, nil
}

// Exists reports whether name can be opened, without decoding it.
func (l *Loader) Exists(ctx context.Context, name string) bool {
	clean, err := cleanName(name)
	if err != nil {
		return false
	}
	rc, err := l.open(ctx, clean)
	if err != nil {
		return false
	}
	rc.Close()
	return true
}

func (l *Loader) open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !l.remote {
		f, err := os.Open(filepath.Join(l.base, filepath.FromSlash(name)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
			}
			return nil, fmt.Errorf("open asset %s: %w", name, err)
		}
		return f, nil
	}

	u, err := url.JoinPath(l.base, name)
	if err != nil {
		return nil, fmt.Errorf("asset url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("asset request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asset fetch failed: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("asset fetch status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func cleanName(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != strings.TrimPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return clean, nil
}

// DecodeMP3 decodes an MP3 stream, resamples it to sampleRate and downmixes
// it to mono.
func DecodeMP3(r io.ReadSeeker, sampleRate int) (*Clip, error) {
	stream, err := mp3.DecodeWithSampleRate(sampleRate, r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode failed: %w", err)
	}

	var pcm []byte
	if n := stream.Length(); n > 0 {
		pcm = make([]byte, 0, n)
	}
	buf := make([]byte, 16*1024)
	for {
		n, err := stream.Read(buf)
		pcm = append(pcm, buf[:n]...)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("mp3 read failed: %w", err)
		}
	}

	samples := stereo16ToMono(pcm)
	if len(samples) == 0 {
		return nil, fmt.Errorf("mp3 contains no samples")
	}
	return &Clip{Samples: samples, SampleRate: sampleRate}, nil
}

// stereo16ToMono averages interleaved little-endian 16-bit stereo frames.
func stereo16ToMono(pcm []byte) []float32 {
	frames := len(pcm) / 4
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(pcm[4*i]) | int16(pcm[4*i+1])<<8
		r := int16(pcm[4*i+2]) | int16(pcm[4*i+3])<<8
		out[i] = (float32(l) + float32(r)) / 2 / 32768
	}
	return out
}
