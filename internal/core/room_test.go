package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/engine/memengine"
)

func TestRoomQueuesUntilRouterReady(t *testing.T) {
	gate := make(chan struct{})
	w, err := memengine.NewWorker(memengine.WithRouterGate(gate))
	require.NoError(t, err)
	defer w.Close()

	r := NewRoom("slow", w, 20*time.Millisecond)
	defer r.Close()

	_, err = r.RtpCapabilities(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, RoomUninitialized, r.State())
	assert.False(t, r.Info().Ready)

	close(gate)
	<-r.Initialized()
	caps, err := r.RtpCapabilities(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(caps), "audio/opus")
	assert.Equal(t, RoomReady, r.State())
}

func TestRoomRouterFailure(t *testing.T) {
	r := newTestRoom(t, memengine.WithRouterError(errors.New("worker died")))
	<-r.Initialized()

	assert.Equal(t, RoomFailed, r.State())
	_, err := r.WaitReady(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestProduceSameKindTwice(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	p1 := addPeer(t, r, "p1", &recSignal{})
	send := newTransport(t, r, p1, RoleSend)

	first, created, err := r.Produce(ctx, p1.ID(), send, domain.KindVideo, nil)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := r.Produce(ctx, p1.ID(), send, domain.KindVideo, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	screen, created, err := r.Produce(ctx, p1.ID(), send, domain.KindScreen, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, screen)
	assert.Equal(t, 2, testRouter(t, r).Dump().Producers)
}

func TestProduceUnknownTransport(t *testing.T) {
	r := newTestRoom(t)
	p1 := addPeer(t, r, "p1", &recSignal{})
	<-r.Initialized()

	_, _, err := r.Produce(context.Background(), p1.ID(), "nope", domain.KindAudio, nil)
	assert.ErrorIs(t, err, ErrTransportNotFound)
	assert.ErrorIs(t, r.ConnectTransport(context.Background(), p1.ID(), "nope", clientDtls), ErrTransportNotFound)
	_, err = r.RestartIce(context.Background(), p1.ID(), "nope")
	assert.ErrorIs(t, err, ErrTransportNotFound)
}

func TestJoinOrderScenario(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)

	p1 := addPeer(t, r, "p1", &recSignal{})
	send := newTransport(t, r, p1, RoleSend)
	v1, _, err := r.Produce(ctx, p1.ID(), send, domain.KindVideo, nil)
	require.NoError(t, err)

	sig2 := &recSignal{}
	p2 := addPeer(t, r, "p2", sig2)
	snapshot := r.ProducerListForPeer(p2.ID())
	require.Len(t, snapshot, 1)
	assert.Equal(t, v1, snapshot[0].ProducerID)
	assert.Equal(t, p1.ID(), snapshot[0].ProducerPeerID)
	assert.Empty(t, r.ProducerListForPeer(p1.ID()))

	recv := newTransport(t, r, p2, RoleReceive)
	params, err := r.Consume(ctx, p2.ID(), recv, v1, clientCaps)
	require.NoError(t, err)
	assert.Equal(t, p1.ID(), params.PeerID)
	assert.Equal(t, domain.KindVideo, params.MediaKind)
	assert.Equal(t, "video", params.Kind)
	assert.Equal(t, 1, p2.ConsumerCount())

	removed, left := r.RemovePeer(p1.ID())
	require.NotNil(t, removed)
	assert.Equal(t, 1, left)
	assert.Equal(t, 1, sig2.count("consumerClosed"))
	assert.Zero(t, p2.ConsumerCount())
	assert.Empty(t, r.ProducerList())

	_, left = r.RemovePeer(p2.ID())
	assert.Zero(t, left)
	assert.Equal(t, RoomClosing, r.State())
}

func TestConsumeIncompatible(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	p1 := addPeer(t, r, "p1", &recSignal{})
	p2 := addPeer(t, r, "p2", &recSignal{})
	v1, _, err := r.Produce(ctx, p1.ID(), newTransport(t, r, p1, RoleSend), domain.KindVideo, nil)
	require.NoError(t, err)
	recv := newTransport(t, r, p2, RoleReceive)

	_, err = r.Consume(ctx, p2.ID(), recv, v1, json.RawMessage(`{"codecs":[{"mimeType":"audio/opus"}]}`))
	assert.ErrorIs(t, err, ErrIncompatibleCapabilities)
	assert.Zero(t, p2.ConsumerCount())
	assert.Zero(t, testRouter(t, r).Dump().Consumers)
}

func TestConsumeUnknownProducer(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	p1 := addPeer(t, r, "p1", &recSignal{})
	p2 := addPeer(t, r, "p2", &recSignal{})
	a1, _, err := r.Produce(ctx, p1.ID(), newTransport(t, r, p1, RoleSend), domain.KindAudio, nil)
	require.NoError(t, err)
	recv := newTransport(t, r, p2, RoleReceive)

	_, err = r.Consume(ctx, p2.ID(), recv, "no-such-producer", clientCaps)
	assert.ErrorIs(t, err, ErrProducerNotFound)

	require.NoError(t, r.CloseProducer(p1.ID(), a1))
	_, err = r.Consume(ctx, p2.ID(), recv, a1, clientCaps)
	assert.ErrorIs(t, err, ErrProducerNotFound)
	assert.Zero(t, p2.ConsumerCount())
}

func TestTransportRoleEnforced(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	p1 := addPeer(t, r, "p1", &recSignal{})
	p2 := addPeer(t, r, "p2", &recSignal{})
	send1 := newTransport(t, r, p1, RoleSend)
	recv1 := newTransport(t, r, p1, RoleReceive)
	send2 := newTransport(t, r, p2, RoleSend)

	_, _, err := r.Produce(ctx, p1.ID(), recv1, domain.KindAudio, nil)
	assert.ErrorIs(t, err, ErrTransportNotFound)
	assert.Empty(t, p1.KindTable())

	a1, _, err := r.Produce(ctx, p1.ID(), send1, domain.KindAudio, nil)
	require.NoError(t, err)
	_, err = r.Consume(ctx, p2.ID(), send2, a1, clientCaps)
	assert.ErrorIs(t, err, ErrTransportNotFound)
	assert.Zero(t, testRouter(t, r).Dump().Consumers)
}

func TestConsumeSimulcastPrefersHighestLayers(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	p1 := addPeer(t, r, "p1", &recSignal{})
	p2 := addPeer(t, r, "p2", &recSignal{})

	rtp := json.RawMessage(`{"codecs":[{"mimeType":"video/VP8"}],` +
		`"encodings":[{"rid":"q","scalabilityMode":"L1T3"},{"rid":"h"},{"rid":"f"}]}`)
	v1, _, err := r.Produce(ctx, p1.ID(), newTransport(t, r, p1, RoleSend), domain.KindVideo, rtp)
	require.NoError(t, err)

	params, err := r.Consume(ctx, p2.ID(), newTransport(t, r, p2, RoleReceive), v1, clientCaps)
	require.NoError(t, err)
	assert.Equal(t, engine.ConsumerSimulcast, params.Type)

	cons, err := p2.Consumer(params.ID)
	require.NoError(t, err)
	layers, ok := cons.(*memengine.Consumer).PreferredLayers()
	require.True(t, ok)
	assert.Equal(t, engine.Layers{Spatial: 2, Temporal: 2}, layers)
}

func TestCloseProducerNotifiesConsumersOnly(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	r := newTestRoom(t)

	owner := &recSignal{}
	p1 := addPeer(t, r, "p1", owner)
	viewer := NewMockSignalConnection(ctrl)
	p2 := addPeer(t, r, "p2", viewer)

	a1, _, err := r.Produce(ctx, p1.ID(), newTransport(t, r, p1, RoleSend), domain.KindAudio, nil)
	require.NoError(t, err)
	params, err := r.Consume(ctx, p2.ID(), newTransport(t, r, p2, RoleReceive), a1, clientCaps)
	require.NoError(t, err)

	viewer.EXPECT().Notify("consumerClosed", map[string]any{"consumerId": params.ID}).Return(nil).Times(1)

	require.NoError(t, r.CloseProducer(p1.ID(), a1))
	assert.ErrorIs(t, r.CloseProducer(p1.ID(), a1), ErrProducerNotFound)
	assert.Zero(t, owner.count("producerClosed"))
	_, ok := p1.ProducerByKind(domain.KindAudio)
	assert.False(t, ok)
	_, err = r.Owner(a1)
	assert.ErrorIs(t, err, ErrProducerNotFound)
}

func TestClosedTransportIsDropped(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	owner := &recSignal{}
	p1 := addPeer(t, r, "p1", owner)
	send := newTransport(t, r, p1, RoleSend)
	_, _, err := r.Produce(ctx, p1.ID(), send, domain.KindAudio, nil)
	require.NoError(t, err)

	p1.SendTransport().(*memengine.Transport).SetState(engine.StateClosed)

	assert.Nil(t, p1.SendTransport())
	assert.Empty(t, p1.Producers())
	assert.Equal(t, 1, owner.count("producerClosed"))
	assert.Empty(t, r.ProducerList())
}

func TestSecondSendTransportReplacesFirst(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	p1 := addPeer(t, r, "p1", &recSignal{})
	first := newTransport(t, r, p1, RoleSend)
	old := p1.SendTransport()
	_, _, err := r.Produce(ctx, p1.ID(), first, domain.KindAudio, nil)
	require.NoError(t, err)

	second := newTransport(t, r, p1, RoleSend)
	assert.NotEqual(t, first, second)
	assert.True(t, old.Closed())
	assert.Empty(t, p1.KindTable())

	_, _, err = r.Produce(ctx, p1.ID(), first, domain.KindAudio, nil)
	assert.ErrorIs(t, err, ErrTransportNotFound)
	_, created, err := r.Produce(ctx, p1.ID(), second, domain.KindAudio, nil)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestRemovePeerLeavesNoMediaState(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	router := testRouter(t, r)

	p1 := addPeer(t, r, "p1", &recSignal{})
	p2 := addPeer(t, r, "p2", &recSignal{})
	send1 := newTransport(t, r, p1, RoleSend)
	send2 := newTransport(t, r, p2, RoleSend)
	recv1 := newTransport(t, r, p1, RoleReceive)
	recv2 := newTransport(t, r, p2, RoleReceive)

	a1, _, err := r.Produce(ctx, p1.ID(), send1, domain.KindAudio, nil)
	require.NoError(t, err)
	a2, _, err := r.Produce(ctx, p2.ID(), send2, domain.KindAudio, nil)
	require.NoError(t, err)
	_, err = r.Consume(ctx, p2.ID(), recv2, a1, clientCaps)
	require.NoError(t, err)
	_, err = r.Consume(ctx, p1.ID(), recv1, a2, clientCaps)
	require.NoError(t, err)
	assert.Equal(t, memengine.Dump{Transports: 4, Producers: 2, Consumers: 2}, router.Dump())

	r.RemovePeer(p1.ID())
	assert.Equal(t, memengine.Dump{Transports: 2, Producers: 1}, router.Dump())
	assert.True(t, p1.Closed())

	r.RemovePeer(p2.ID())
	assert.Equal(t, memengine.Dump{}, router.Dump())

	p, left := r.RemovePeer(p2.ID())
	assert.Nil(t, p)
	assert.Zero(t, left)
}

func TestBroadcastReportsDropped(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := newTestRoom(t)

	fast := NewMockSignalConnection(ctrl)
	slow := NewMockSignalConnection(ctrl)
	addPeer(t, r, "from", &recSignal{})
	addPeer(t, r, "fast", fast)
	addPeer(t, r, "slow", slow)

	fast.EXPECT().Notify("newPeer", gomock.Any()).Return(nil)
	slow.EXPECT().Notify("newPeer", gomock.Any()).Return(errors.New("buffer full"))

	res := r.Broadcast("from", "newPeer", domain.Participant{ID: "from"})
	assert.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, domain.PeerID("slow"), res.Dropped[0].ID())
}

func TestAddPeerToClosedRoom(t *testing.T) {
	r := newTestRoom(t)
	r.Close()
	err := r.AddPeer(NewPeer(domain.Participant{ID: "late"}, "", nil))
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestPauseResumeProducer(t *testing.T) {
	ctx := context.Background()
	r := newTestRoom(t)
	p1 := addPeer(t, r, "p1", &recSignal{})
	v1, _, err := r.Produce(ctx, p1.ID(), newTransport(t, r, p1, RoleSend), domain.KindVideo, nil)
	require.NoError(t, err)

	info, err := r.PauseProducer(ctx, p1.ID(), v1)
	require.NoError(t, err)
	assert.True(t, info.Paused)
	assert.True(t, p1.Producers()[0].Paused)

	info, err = r.ResumeProducer(ctx, p1.ID(), v1)
	require.NoError(t, err)
	assert.False(t, info.Paused)

	_, err = r.PauseProducer(ctx, p1.ID(), "missing")
	assert.ErrorIs(t, err, ErrProducerNotFound)
	assert.ErrorIs(t, r.ResumeConsumer(ctx, p1.ID(), "missing"), ErrConsumerNotFound)
}
