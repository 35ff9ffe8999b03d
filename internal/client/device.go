package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
)

// Device is the local media stack: it learns the router capabilities once
// and describes what the client can receive and send.
type Device interface {
	Load(ctx context.Context, routerRtpCapabilities json.RawMessage) error
	Loaded() bool
	RtpCapabilities() json.RawMessage
	DtlsParameters() json.RawMessage
	RtpParameters(kind domain.MediaKind) json.RawMessage
}

// StaticDevice accepts every router codec and sends default parameters.
// roomctl and tests use it where there is no real media.
type StaticDevice struct {
	mu   sync.RWMutex
	caps json.RawMessage
	// Loads counts Load calls.
	Loads int
}

var staticDtls = json.RawMessage(`{"role":"client","fingerprints":[{"algorithm":"sha-256","value":"00"}]}`)

func (d *StaticDevice) Load(_ context.Context, caps json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = caps
	d.Loads++
	return nil
}

func (d *StaticDevice) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps != nil
}

func (d *StaticDevice) RtpCapabilities() json.RawMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps
}

func (d *StaticDevice) DtlsParameters() json.RawMessage { return staticDtls }

func (d *StaticDevice) RtpParameters(domain.MediaKind) json.RawMessage { return nil }
