package rtc

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

const (
	// Decoded sample rate and channel count for the voice-activity path.
	tapSampleRate = 16000
	tapChannels   = 1
)

// RTPReader is the read side of a remote track. *webrtc.TrackRemote
// satisfies it; tests use a scripted fake.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// AudioSink consumes little-endian PCM16 mono at 16 kHz.
type AudioSink interface {
	Feed(pcm []byte)
}

// TrackTap decodes a remote opus track into PCM and feeds a sink. One tap
// per remote track.
type TrackTap struct {
	dec  *opus.Decoder
	sink AudioSink
	log  zerolog.Logger
}

// NewTrackTap constructs a tap with a fresh opus decoder.
func NewTrackTap(sink AudioSink, log zerolog.Logger) (*TrackTap, error) {
	dec, err := opus.NewDecoder(tapSampleRate, tapChannels)
	if err != nil {
		return nil, err
	}
	return &TrackTap{dec: dec, sink: sink, log: log}, nil
}

// Run reads RTP packets until the track ends, decoding each payload and
// pushing the PCM downstream. It blocks; callers run it in a goroutine.
func (t *TrackTap) Run(track RTPReader) {
	samples := make([]int16, 1920)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Warn().Err(err).Msg("rtp read error, stopping tap")
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := t.dec.Decode(pkt.Payload, samples)
		if err != nil {
			t.log.Debug().Err(err).Msg("opus decode error, skipping packet")
			continue
		}
		pcm := make([]byte, n*2)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(pcm[i*2:(i+1)*2], uint16(samples[i]))
		}
		t.sink.Feed(pcm)
	}
}
