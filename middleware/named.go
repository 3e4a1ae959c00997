package middleware

import (
	"fmt"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// Named returns a guard for the operation configured under name. It fails
// at wiring time, not per request, when the operation is unknown.
func Named(engine *goGuard.Engine, name string, opts ...Option) (func(http.Handler) http.Handler, error) {
	op, ok := engine.Operation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", goGuard.ErrUnknownOperation, name)
	}
	return Guard(engine, op, opts...), nil
}
