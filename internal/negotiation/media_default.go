//go:build !(linux && mediadevices)

package negotiation

// NewDefaultStack returns a pion factory with the default codecs and a
// receive-only media source. Builds with the mediadevices tag on linux
// capture camera and microphone instead.
func NewDefaultStack(iceServers []string) (PeerConnectionFactory, MediaSource, error) {
	f, err := NewPionFactory(iceServers)
	if err != nil {
		return nil, nil, err
	}
	return f, RecvOnlyMedia{}, nil
}
