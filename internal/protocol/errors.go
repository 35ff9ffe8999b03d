package protocol

import (
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Code is the errorCode of a failed response.
type Code string

const (
	CodeAlreadyExists     Code = "AlreadyExists"
	CodeRoomNotFound      Code = "RoomNotFound"
	CodeNotFound          Code = "NotFound"
	CodeTransportNotFound Code = "TransportNotFound"
	CodeProducerNotFound  Code = "ProducerNotFound"
	CodeConsumerNotFound  Code = "ConsumerNotFound"
	CodeNotReady          Code = "NotReady"
	CodeNotAuthorized     Code = "NotAuthorized"
	CodeNotInRoom         Code = "NotInRoom"
	CodeAlreadyJoined     Code = "AlreadyJoined"
	CodeBadRequest        Code = "BadRequest"
	CodeRateLimited       Code = "RateLimited"
	CodeInternal          Code = "Internal"
)

var (
	ErrBadRequest    = errors.New("bad request")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnknownMethod = errors.New("unknown method")
)

var codes = []struct {
	err  error
	code Code
}{
	{core.ErrRoomExists, CodeAlreadyExists},
	{core.ErrRoomNotFound, CodeRoomNotFound},
	{core.ErrRoomClosed, CodeRoomNotFound},
	{core.ErrTransportNotFound, CodeTransportNotFound},
	{core.ErrProducerNotFound, CodeProducerNotFound},
	{core.ErrConsumerNotFound, CodeConsumerNotFound},
	{core.ErrPeerNotFound, CodeNotFound},
	{core.ErrPeerClosed, CodeNotFound},
	{core.ErrNotReady, CodeNotReady},
	{core.ErrNotAuthorized, CodeNotAuthorized},
	{orch.ErrNotInRoom, CodeNotInRoom},
	{orch.ErrAlreadyJoined, CodeAlreadyJoined},
	{ErrRateLimited, CodeRateLimited},
	{ErrBadRequest, CodeBadRequest},
	{ErrBadFrame, CodeBadRequest},
	{ErrUnknownMethod, CodeBadRequest},
	{domain.ErrNameEmpty, CodeBadRequest},
	{domain.ErrNameTooLong, CodeBadRequest},
	{domain.ErrRoomIDEmpty, CodeBadRequest},
	{domain.ErrRoomIDTooLong, CodeBadRequest},
	{domain.ErrUnknownMediaKind, CodeBadRequest},
}

func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// Error is a failed response as seen by a client.
type Error struct {
	Code   Code
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}
