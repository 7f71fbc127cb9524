package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

// Source is the capture-pipeline boundary: something that produces the
// outbound audio track and keeps it fed. Capture, enhancement and encoding
// live behind this interface.
type Source interface {
	Track() Gated
	// Run feeds the track until ctx is canceled.
	Run(ctx context.Context) error
}

const oggPageInterval = 20 * time.Millisecond

// OggSource plays an Ogg/Opus file as the local microphone, looping at EOF.
// Useful for development and soak testing without a capture device.
type OggSource struct {
	path  string
	track *GatedTrack
}

func NewOggSource(path string) (*OggSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("media: open audio source: %w", err)
	}
	_ = f.Close()

	track, err := NewGatedTrack(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		uuid.NewString(),
		uuid.NewString(),
	)
	if err != nil {
		return nil, fmt.Errorf("media: create audio track: %w", err)
	}
	return &OggSource{path: path, track: track}, nil
}

func (s *OggSource) Track() Gated { return s.track }

// Run paces Ogg pages onto the track at their encoded duration. The gate
// decides whether pages actually leave the process.
func (s *OggSource) Run(ctx context.Context) error {
	for {
		if err := s.playOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		log.Debug().Str("module", "media").Str("file", s.path).Msg("audio source looping")
	}
}

func (s *OggSource) playOnce(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("media: open audio source: %w", err)
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("media: parse ogg: %w", err)
	}

	var lastGranule uint64
	ticker := time.NewTicker(oggPageInterval)
	defer ticker.Stop()

	for {
		pageData, pageHeader, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("media: read ogg page: %w", err)
		}

		sampleCount := float64(pageHeader.GranulePosition - lastGranule)
		lastGranule = pageHeader.GranulePosition
		duration := time.Duration((sampleCount/48000)*1000) * time.Millisecond

		if err := s.track.WriteSample(media.Sample{Data: pageData, Duration: duration}); err != nil {
			log.Warn().Err(err).Str("module", "media").Msg("write sample")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
