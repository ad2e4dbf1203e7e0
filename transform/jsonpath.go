// Package transform provides incoming hooks for model types: functions that
// reshape a decoded payload before it is bound to a view.
package transform

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tfkr-ae/arsenal/model"
)

// JSONPath returns a hook that replaces the payload with the result of expr,
// for example "$.data.items" to unpack an envelope. The expression is compiled
// once; an invalid expression is reported here rather than on first use.
func JSONPath(expr string) (model.IncomingFunc, error) {
	eval, err := jsonpath.New(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling jsonpath %q : %w", expr, err)
	}

	return func(raw any) (any, error) {
		result, err := eval(context.Background(), raw)
		if err != nil {
			return nil, fmt.Errorf("evaluating jsonpath %q : %w", expr, err)
		}
		return result, nil
	}, nil
}

// Chain runs hooks in order, feeding each one the previous result.
func Chain(hooks ...model.IncomingFunc) model.IncomingFunc {
	return func(raw any) (any, error) {
		var err error
		for _, hook := range hooks {
			if raw, err = hook(raw); err != nil {
				return nil, err
			}
		}
		return raw, nil
	}
}
