// Package output delivers rendered engine audio to a listener: the local
// speaker or a WAV stream.
package output

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	channels      = 2
	bitsPerSample = 16
	// streamingSize marks the RIFF and data chunks as open-ended.
	streamingSize = 0xFFFFFFFF
)

// WriteWAVHeader writes a 44-byte PCM header for an open-ended stereo 16-bit stream.
func WriteWAVHeader(w io.Writer, sampleRate int) error {
	blockAlign := channels * bitsPerSample / 8
	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], streamingSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], streamingSize)
	_, err := w.Write(hdr[:])
	return err
}

// StreamWAV writes a header and then copies src to w one chunk per tick, so
// the listener receives audio at playback speed. It returns nil when ctx is
// done or src reports io.EOF.
func StreamWAV(ctx context.Context, w io.Writer, src io.Reader, sampleRate int, chunk time.Duration) error {
	if chunk <= 0 {
		chunk = 100 * time.Millisecond
	}
	if err := WriteWAVHeader(w, sampleRate); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	flush(w)

	frames := int(chunk.Seconds() * float64(sampleRate))
	if frames < 1 {
		frames = 1
	}
	buf := make([]byte, frames*channels*bitsPerSample/8)
	ticker := time.NewTicker(chunk)
	defer ticker.Stop()

	for {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write wav data: %w", werr)
			}
			flush(w)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read audio: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
