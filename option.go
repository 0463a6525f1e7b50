package devrpc

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hexlantern/devrpc/codec"
)

// DefaultInitProc is the procedure a freshly connected session invokes when
// Options.InitArgs is non-empty, letting a client register its capabilities
// with the server before the caller sees the session.
const DefaultInitProc = "session.init"

type Options struct {
	// ConnectTimeout bounds transport establishment. 0 means no limit.
	ConnectTimeout time.Duration

	// InitProc and InitArgs describe the optional connection-time
	// initialization call forwarded by Connect. The call is skipped when
	// InitArgs is empty.
	InitProc string
	InitArgs []codec.Value

	// Logger receives connection-lifecycle events; nil logs nothing.
	Logger *zerolog.Logger
}

func DefaultOptions() *Options {
	return &Options{
		ConnectTimeout: 10 * time.Second,
		InitProc:       DefaultInitProc,
	}
}

func (o *Options) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return zerolog.Nop()
}

// parseOptions accepts at most one Options value; nil or absent means
// defaults. Unset fields are backfilled so callers can specify only what
// they care about.
func parseOptions(opts ...*Options) (*Options, error) {
	if len(opts) == 0 || opts[0] == nil {
		return DefaultOptions(), nil
	}
	if len(opts) != 1 {
		return nil, errors.New("devrpc: number of options is more than 1")
	}
	opt := *opts[0]
	if opt.InitProc == "" {
		opt.InitProc = DefaultInitProc
	}
	return &opt, nil
}
