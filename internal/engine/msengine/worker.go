// Package msengine binds the engine interfaces to mediasoup workers.
package msengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/Huddle/internal/engine"
)

// Settings configures workers and the transports created on them.
type Settings struct {
	WorkerBin          string
	NumWorkers         int
	ListenIP           string
	AnnouncedAddress   string
	MaxIncomingBitrate uint32
}

var mediaCodecs = []byte(`[
	{"kind":"audio","mimeType":"audio/opus","clockRate":48000,"channels":2},
	{"kind":"video","mimeType":"video/VP8","clockRate":90000,"parameters":{"x-google-start-bitrate":1000}},
	{"kind":"video","mimeType":"video/H264","clockRate":90000,
	 "parameters":{"packetization-mode":1,"profile-level-id":"42e01f","level-asymmetry-allowed":1}}
]`)

type Worker struct {
	w        *mediasoup.Worker
	id       string
	settings Settings
	codecs   []*mediasoup.RtpCodecCapability
}

// StartWorkers spawns s.NumWorkers mediasoup workers concurrently.
func StartWorkers(ctx context.Context, s Settings) ([]engine.Worker, error) {
	var codecs []*mediasoup.RtpCodecCapability
	if err := json.Unmarshal(mediaCodecs, &codecs); err != nil {
		return nil, fmt.Errorf("media codecs: %w", err)
	}

	p := pool.NewWithResults[*Worker]().WithContext(ctx).WithCancelOnError()
	for i := range s.NumWorkers {
		p.Go(func(ctx context.Context) (*Worker, error) {
			w, err := mediasoup.NewWorker(s.WorkerBin)
			if err != nil {
				return nil, fmt.Errorf("worker %d: %w", i, err)
			}
			return &Worker{w: w, id: strconv.Itoa(w.Pid()), settings: s, codecs: codecs}, nil
		})
	}
	started, err := p.Wait()
	if err != nil {
		for _, w := range started {
			if w != nil {
				w.Close()
			}
		}
		return nil, err
	}

	out := make([]engine.Worker, 0, len(started))
	for _, w := range started {
		log.Info().Str("module", "engine.mediasoup").Str("worker_id", w.id).Msg("worker started")
		out = append(out, w)
	}
	return out, nil
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) CreateRouter(context.Context) (engine.Router, error) {
	r, err := w.w.CreateRouter(&mediasoup.RouterOptions{MediaCodecs: w.codecs})
	if err != nil {
		return nil, err
	}
	caps, err := json.Marshal(r.RtpCapabilities())
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("router capabilities: %w", err)
	}
	return &Router{r: r, caps: caps, settings: w.settings}, nil
}

func (w *Worker) Close() {
	w.w.Close()
}

type Router struct {
	r        *mediasoup.Router
	caps     json.RawMessage
	settings Settings
}

func (r *Router) ID() string { return r.r.Id() }

func (r *Router) RtpCapabilities() json.RawMessage { return r.caps }

func (r *Router) CanConsume(producerID string, rtpCapabilities json.RawMessage) bool {
	var caps mediasoup.RtpCapabilities
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		return false
	}
	return r.r.CanConsume(producerID, &caps)
}

func (r *Router) CreateWebRtcTransport(_ context.Context, opts engine.TransportOptions) (engine.Transport, error) {
	appData := mediasoup.H{
		"producing": opts.Producing,
		"consuming": opts.Consuming,
	}
	for k, v := range opts.AppData {
		appData[k] = v
	}
	options := &mediasoup.WebRtcTransportOptions{
		ListenInfos: []mediasoup.TransportListenInfo{
			{Protocol: mediasoup.TransportProtocolUDP, Ip: r.settings.ListenIP, AnnouncedAddress: r.settings.AnnouncedAddress},
			{Protocol: mediasoup.TransportProtocolTCP, Ip: r.settings.ListenIP, AnnouncedAddress: r.settings.AnnouncedAddress},
		},
		EnableTcp: true,
		AppData:   appData,
	}
	if opts.ForceTCP {
		disabled := false
		options.EnableUdp = &disabled
	}

	t, err := r.r.CreateWebRtcTransport(options)
	if err != nil {
		return nil, err
	}
	if r.settings.MaxIncomingBitrate > 0 {
		if err := t.SetMaxIncomingBitrate(r.settings.MaxIncomingBitrate); err != nil {
			log.Warn().Str("module", "engine.mediasoup").Err(err).Msg("set max incoming bitrate")
		}
	}
	return newTransport(t), nil
}

func (r *Router) Close() {
	r.r.Close()
}
