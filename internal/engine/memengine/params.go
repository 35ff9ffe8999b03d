package memengine

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

var routerCapabilities = json.RawMessage(`{"codecs":[` +
	`{"kind":"audio","mimeType":"audio/opus","clockRate":48000,"channels":2,"preferredPayloadType":100},` +
	`{"kind":"video","mimeType":"video/VP8","clockRate":90000,"preferredPayloadType":101},` +
	`{"kind":"video","mimeType":"video/H264","clockRate":90000,"preferredPayloadType":102,` +
	`"parameters":{"packetization-mode":1,"profile-level-id":"42e01f"}}],"headerExtensions":[]}`)

type codec struct {
	Kind     string `json:"kind,omitempty"`
	MimeType string `json:"mimeType"`
}

type encoding struct {
	SSRC            uint32 `json:"ssrc,omitempty"`
	RID             string `json:"rid,omitempty"`
	ScalabilityMode string `json:"scalabilityMode,omitempty"`
}

type rtpParameters struct {
	Mid       string     `json:"mid,omitempty"`
	Codecs    []codec    `json:"codecs"`
	Encodings []encoding `json:"encodings"`
}

type rtpCapabilities struct {
	Codecs []codec `json:"codecs"`
}

type iceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type dtlsParameters struct {
	Role         string                   `json:"role"`
	Fingerprints []webrtc.DTLSFingerprint `json:"fingerprints"`
}

func (c rtpCapabilities) supports(mimeType string) bool {
	for _, cd := range c.Codecs {
		if strings.EqualFold(cd.MimeType, mimeType) {
			return true
		}
	}
	return false
}

func defaultMimeType(kind string) string {
	if kind == "audio" {
		return "audio/opus"
	}
	return "video/VP8"
}

func parseRtpParameters(kind string, raw json.RawMessage) (rtpParameters, error) {
	var p rtpParameters
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("rtp parameters: %w", err)
		}
	}
	if len(p.Codecs) == 0 {
		p.Codecs = []codec{{MimeType: defaultMimeType(kind)}}
	}
	if len(p.Encodings) == 0 {
		p.Encodings = []encoding{{SSRC: rand.Uint32()}}
	}
	return p, nil
}

// layers derives spatial/temporal layer counts from the encodings.
func (p rtpParameters) layers() (spatial, temporal int) {
	spatial, temporal = len(p.Encodings), 1
	if spatial == 0 {
		spatial = 1
	}
	mode := p.Encodings[0].ScalabilityMode
	var s, t int
	if _, err := fmt.Sscanf(mode, "L%dT%d", &s, &t); err == nil {
		if spatial == 1 {
			spatial = s
		}
		temporal = t
	}
	return spatial, temporal
}

func newIceParameters() webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: randomToken(16),
		Password:         randomToken(32),
		ICELite:          true,
	}
}

func randomToken(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:n]
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
