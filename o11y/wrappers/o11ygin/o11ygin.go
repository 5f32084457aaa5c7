// Package o11ygin traces gin requests and recovers their panics.
package o11ygin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pgscope/pgscope/o11y"
)

const contextCancelledKey = "o11y-context-cancelled-key"

// Middleware for Gin router. It starts a span per request, continuing any trace the
// caller propagated, and times the handler by route and status.
func Middleware(provider o11y.Provider, serverName string, queryParams map[string]struct{}) gin.HandlerFunc {
	m := provider.MetricsProvider()
	return func(c *gin.Context) {
		start := time.Now()

		ctx := o11y.WithProvider(c.Request.Context(), provider)
		ctx, span := startSpanOrTraceFromHTTP(ctx, c, provider)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		route := c.FullPath()
		if route == "" {
			c.Header("X-Route", "not-found")
		} else {
			c.Header("X-Route", route)
		}
		addRequestFields(span, c, serverName, queryParams)

		defer func() {
			status := c.Writer.Status()
			if c.GetBool(contextCancelledKey) {
				status = 499
			}
			span.AddRawField("http.status_code", status)
			span.AddRawField("http.response_content_length", c.Writer.Size())

			tags := []string{
				"http.server_name:" + serverName,
				"http.method:" + c.Request.Method,
				"http.route:" + route,
				"http.status_code:" + strconv.Itoa(status),
			}
			_ = m.TimeInMilliseconds("handler", float64(time.Since(start))/float64(time.Millisecond), tags, 1)
		}()
		c.Next()
	}
}

func addRequestFields(span o11y.Span, c *gin.Context, serverName string, queryParams map[string]struct{}) {
	req := c.Request
	for k, v := range map[string]interface{}{
		"meta.type":                   "http_server",
		"http.server_name":            serverName,
		"http.route":                  c.FullPath(),
		"http.client_ip":              c.ClientIP(),
		"http.method":                 req.Method,
		"http.url":                    req.URL.String(),
		"http.target":                 req.URL.Path,
		"http.host":                   req.Host,
		"http.user_agent":             req.UserAgent(),
		"http.request_content_length": req.ContentLength,
	} {
		span.AddRawField(k, v)
	}

	for _, p := range c.Params {
		span.AddRawField("handler.vars."+p.Key, p.Value)
	}

	// only the named query parameters are recorded, the rest may carry user data
	for key, values := range req.URL.Query() {
		if _, ok := queryParams[key]; !ok {
			continue
		}
		var v interface{} = values
		if len(values) == 1 {
			v = values[0]
		}
		span.AddRawField("handler.query."+key, v)
	}
}

// ClientCancelled is a gin middleware that will trap a request context cancellation
// and return a 499 (a.la. nginx).
// If the response has already been written to, for example setting a status code, then
// that code will be honoured.
func ClientCancelled() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		defer func() {
			if errors.Is(ctx.Err(), context.Canceled) {
				c.Set(contextCancelledKey, true)
				return
			}
			// note any errors within the gin handling, for instance during rendering
			if len(c.Errors) > 0 {
				o11y.AddField(ctx, "gin_internal_error", c.Errors.String())
			}
		}()
		c.Next()
	}
}

// Recovery turns a panic into a 500, recording it on the request span and reporting
// it to rollbar when the provider has a client.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		c.AbortWithStatus(http.StatusInternalServerError)
		ctx := c.Request.Context()
		span := o11y.FromContext(ctx).GetSpan(ctx)
		if span == nil {
			_, span = o11y.StartSpan(ctx, "gin: recovered panic")
			defer span.End()
		}

		// Most likely caused by one side of the proxy disappearing. Not really a panic
		// https://github.com/golang/go/issues/28239
		if origErr, ok := err.(error); ok && errors.Is(origErr, http.ErrAbortHandler) {
			o11y.AddResultToSpan(span, origErr)
			return
		}

		_ = o11y.HandlePanic(ctx, span, err, c.Request)
	})
}

func startSpanOrTraceFromHTTP(ctx context.Context, c *gin.Context, p o11y.Provider) (context.Context, o11y.Span) {
	name := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
	if p.GetSpan(ctx) != nil {
		return o11y.StartSpan(ctx, name)
	}
	// no trace yet, so start one from whatever the caller propagated
	ctx, span := p.Helpers().InjectPropagation(ctx, o11y.PropagationContext{Headers: c.Request.Header})
	span.AddRawField("name", name)
	return ctx, span
}
