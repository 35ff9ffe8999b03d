package msengine

import (
	"context"

	"github.com/jiyeyuran/mediasoup-go/v2"
)

// Consumer-side events reach core only through these listeners.
var (
	_ interface{ OnClose(func(context.Context)) }          = (*mediasoup.Producer)(nil)
	_ interface{ OnClose(func(context.Context)) }          = (*mediasoup.Consumer)(nil)
	_ interface{ OnProducerClose(func(context.Context)) }  = (*mediasoup.Consumer)(nil)
	_ interface{ OnProducerPause(func(context.Context)) }  = (*mediasoup.Consumer)(nil)
	_ interface{ OnProducerResume(func(context.Context)) } = (*mediasoup.Consumer)(nil)
)
