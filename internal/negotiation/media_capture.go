//go:build linux && mediadevices

package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/preetsinghmakkar/SkillSwap/internal/apperrors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CaptureMedia grabs the local camera and microphone through
// pion/mediadevices and shares the tracks with every peer connection.
type CaptureMedia struct {
	selector *mediadevices.CodecSelector
	log      zerolog.Logger

	mu     sync.Mutex
	tracks []mediadevices.Track
	closed bool
}

func NewCaptureMedia() (*CaptureMedia, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	return &CaptureMedia{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		log: log.With().Str("component", "media").Logger(),
	}, nil
}

// Populate registers the capture codecs on m.
func (c *CaptureMedia) Populate(m *webrtc.MediaEngine) {
	c.selector.Populate(m)
}

type captureAttempt struct {
	video, audio bool
	label        string
}

// Acquire opens camera and microphone, falling back to a single kind when
// one of them cannot be opened.
func (c *CaptureMedia) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: media released", apperrors.ErrMediaUnavailable)
	}
	if len(c.tracks) > 0 {
		return nil
	}

	if len(mediadevices.EnumerateDevices()) == 0 {
		return fmt.Errorf("%w: no capture devices found", apperrors.ErrMediaUnavailable)
	}

	var errs []error
	for _, a := range []captureAttempt{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}

		constraints := mediadevices.MediaStreamConstraints{Codec: c.selector}
		if a.video {
			constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
				// Raw formats only. Some MJPEG nodes emit frames the encoder rejects.
				mc.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				mc.Width = prop.IntRanged{Max: 640}
				mc.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			c.log.Warn().Err(err).Str("attempt", a.label).Msg("capture failed")
			errs = append(errs, fmt.Errorf("%s: %w", a.label, err))
			continue
		}

		c.tracks = stream.GetTracks()
		for _, t := range c.tracks {
			t.OnEnded(func(err error) {
				if err != nil {
					c.log.Warn().Err(err).Str("kind", t.Kind().String()).Msg("local track ended")
				}
			})
		}
		c.log.Info().Str("attempt", a.label).Int("tracks", len(c.tracks)).Msg("local media captured")
		return nil
	}
	return fmt.Errorf("%w: %v", apperrors.ErrMediaUnavailable, errors.Join(errs...))
}

func (c *CaptureMedia) Attach(pc PeerConnection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tracks) == 0 {
		return fmt.Errorf("%w: media not acquired", apperrors.ErrMediaUnavailable)
	}
	for _, t := range c.tracks {
		if err := pc.AddTrack(t); err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}
	return nil
}

// Close stops every captured track. Later Acquire calls fail.
func (c *CaptureMedia) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	var errs []error
	for _, t := range c.tracks {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.tracks = nil
	return errors.Join(errs...)
}

// NewDefaultStack captures camera and microphone and builds a factory whose
// media engine carries the capture codecs.
func NewDefaultStack(iceServers []string) (PeerConnectionFactory, MediaSource, error) {
	media, err := NewCaptureMedia()
	if err != nil {
		return nil, nil, err
	}
	m := &webrtc.MediaEngine{}
	media.Populate(m)
	f, err := NewPionFactoryWithEngine(m, iceServers)
	if err != nil {
		return nil, nil, err
	}
	return f, media, nil
}
