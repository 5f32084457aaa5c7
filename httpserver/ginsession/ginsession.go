// Package ginsession gives every gin request its own database session.
//
// The middleware opens a session before the handlers run and always closes it after
// they finish. Handlers commit what they want kept. If a handler records an error with
// Abort, or panics, the session is rolled back and the client gets a 500 with
// {"detail": "Database connection error"}, unless a response has already been written.
package ginsession

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/o11y"
)

const sessionKey = "ginsession-session"

// Middleware scopes a session from sm to each request. Install it after the o11ygin
// middleware and Recovery, so panics it re-raises are reported.
func Middleware(sm *db.SessionMaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		s, err := sm.Open(ctx)
		if err != nil {
			fail(c, db.Translate(ctx, err))
			c.Abort()
			return
		}

		c.Set(sessionKey, s)
		c.Request = c.Request.WithContext(db.WithSession(ctx, s))

		defer func() {
			p := recover()
			ctx := c.Request.Context()

			var cause error
			switch {
			case p != nil:
				cause = fmt.Errorf("panic: %v", p)
			case len(c.Errors) > 0:
				cause = c.Errors.Last().Err
			}
			if cause != nil {
				if rErr := s.Rollback(ctx); rErr != nil {
					o11y.AddField(ctx, "rollback_error", rErr)
				}
				fail(c, db.Translate(ctx, cause))
			}

			if cErr := s.Close(ctx); cErr != nil {
				o11y.LogError(ctx, "ginsession: close", cErr)
			}
			if p != nil {
				panic(p)
			}
		}()

		c.Next()
	}
}

// fail writes the status and detail for err, if nothing has been written yet.
func fail(c *gin.Context, err error) {
	if c.Writer.Written() {
		return
	}
	status := db.ErrConnection
	se := &db.StatusError{}
	if errors.As(err, &se) {
		status = se
	}
	c.AbortWithStatusJSON(status.Status, gin.H{"detail": status.Detail})
}

// Session returns the request's session. It panics if Middleware is not installed.
func Session(c *gin.Context) *db.Session {
	return c.MustGet(sessionKey).(*db.Session)
}

// Abort records err against the request and stops the handler chain. The middleware
// rolls the session back and responds with a 500.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
