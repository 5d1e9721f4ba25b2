package negotiation

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// RecvOnlyMedia sends nothing. It adds receive-only audio and video
// transceivers so offers and answers still carry m-lines with ICE
// credentials.
type RecvOnlyMedia struct{}

func (RecvOnlyMedia) Acquire(context.Context) error { return nil }

func (RecvOnlyMedia) Attach(pc PeerConnection) error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if err := pc.AddTransceiver(kind, webrtc.RTPTransceiverDirectionRecvonly); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

func (RecvOnlyMedia) Close() error { return nil }
