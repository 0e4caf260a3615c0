package command

import (
	"context"
	"fmt"
	"maps"

	"github.com/go-viper/mapstructure/v2"
)

// Params are the keyword arguments of a command as sent by the controller.
type Params map[string]any

func (p Params) clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

type validator interface {
	Validate() error
}

// DecodeParams decodes params into out using the json tags of out. Unknown
// keys are ignored. If out implements Validate, it is called afterwards.
func DecodeParams(params Params, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return fmt.Errorf("build params decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(params)); err != nil {
		return InvalidCommandParamsError(err.Error())
	}
	if v, ok := out.(validator); ok {
		if err := v.Validate(); err != nil {
			return InvalidCommandParamsError(err.Error())
		}
	}
	return nil
}

// Typed binds a handler body taking decoded arguments of type T.
func Typed[T any](fn func(ctx context.Context, args T) (any, error)) BindFunc {
	return func(params Params) (Func, error) {
		var args T
		if err := DecodeParams(params, &args); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			return fn(ctx, args)
		}, nil
	}
}

// NoArgs binds a handler body that takes no arguments.
func NoArgs(fn func(ctx context.Context) (any, error)) BindFunc {
	return func(Params) (Func, error) {
		return fn, nil
	}
}
