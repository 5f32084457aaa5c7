// Package ginrouter builds gin engines with the standard tracing and recovery middleware.
package ginrouter

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/pgscope/pgscope/o11y"
	"github.com/pgscope/pgscope/o11y/wrappers/o11ygin"
)

var setMode sync.Once

type options struct {
	verbose map[string]struct{}
}

type Option func(*options)

// WithVerboseParam names a query parameter that switches on verbose span fields
// for the request it is set on.
func WithVerboseParam(name string) Option {
	return func(o *options) {
		if o.verbose == nil {
			o.verbose = map[string]struct{}{}
		}
		o.verbose[name] = struct{}{}
	}
}

// Default returns an engine that traces every request under serverName, turns panics
// into 500s and records client cancellations as 499s. Unrouted requests get the
// same {"detail": ...} body shape as handler errors.
func Default(ctx context.Context, serverName string, opts ...Option) *gin.Engine {
	setMode.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	r := gin.New()
	r.UseRawPath = true
	r.HandleMethodNotAllowed = true
	r.Use(
		o11ygin.Middleware(o11y.FromContext(ctx), serverName, o.verbose),
		o11ygin.Recovery(),
		o11ygin.ClientCancelled(),
	)
	r.NoRoute(unrouted(http.StatusNotFound, "not-found"))
	r.NoMethod(unrouted(http.StatusMethodNotAllowed, "method-not-allowed"))
	return r
}

func unrouted(status int, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Route", route)
		c.AbortWithStatusJSON(status, gin.H{"detail": http.StatusText(status)})
	}
}
