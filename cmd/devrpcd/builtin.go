package main

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hexlantern/devrpc"
	"github.com/hexlantern/devrpc/codec"
)

// registerBuiltins populates the diagnostic procedures every devrpcd
// instance serves. Device-backend procedures are registered by the hosting
// process, not here.
func registerBuiltins(reg *devrpc.Registry, logger zerolog.Logger) error {
	if err := reg.Register("echo", func(args []codec.Value) (codec.Value, error) {
		if len(args) != 1 {
			return codec.Value{}, errors.New("echo takes exactly one argument")
		}
		return args[0], nil
	}); err != nil {
		return err
	}

	if err := reg.Register("session.init", func(args []codec.Value) (codec.Value, error) {
		caps := make([]string, 0, len(args))
		for _, a := range args {
			caps = append(caps, a.Str())
		}
		logger.Info().Str("caps", strings.Join(caps, ",")).Msg("client session initialized")
		return codec.Nil(), nil
	}); err != nil {
		return err
	}

	return reg.Register("server.procs", func([]codec.Value) (codec.Value, error) {
		names := reg.Names()
		vs := make([]codec.Value, 0, len(names))
		for _, n := range names {
			vs = append(vs, codec.Str(n))
		}
		return codec.List(vs...), nil
	})
}
