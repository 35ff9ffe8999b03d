package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownMediaKind = errors.New("unknown media kind")

// MediaKind is what a producer carries. Screen shares travel as video
// in the engine but are tracked separately so a peer can publish both.
type MediaKind string

const (
	KindAudio  MediaKind = "audio"
	KindVideo  MediaKind = "video"
	KindScreen MediaKind = "screen"
)

func ParseMediaKind(raw string) (MediaKind, error) {
	switch k := MediaKind(raw); k {
	case KindAudio, KindVideo, KindScreen:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMediaKind, raw)
}

// EngineKind is the RTP media kind understood by the media engine.
func (k MediaKind) EngineKind() string {
	if k == KindAudio {
		return "audio"
	}
	return "video"
}
