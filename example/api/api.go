// Package api serves the notes HTTP API. Every /api request runs in its own database
// session, and handlers commit what they change.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pgscope/pgscope/db"
	"github.com/pgscope/pgscope/example/notes"
	"github.com/pgscope/pgscope/httpserver/ginrouter"
	"github.com/pgscope/pgscope/httpserver/ginsession"
)

type API struct {
	router *gin.Engine
	store  *notes.Store
}

type Options struct {
	Sessions *db.SessionMaker
	Store    *notes.Store
}

func New(ctx context.Context, opts Options) *API {
	r := ginrouter.Default(ctx, "api", ginrouter.WithVerboseParam("debug"))
	a := &API{
		router: r,
		store:  opts.Store,
	}

	g := r.Group("/api", ginsession.Middleware(opts.Sessions))
	g.GET("/notes/:id", a.getNote)
	g.POST("/notes", a.postNote)
	g.DELETE("/notes/:id", a.deleteNote)

	return a
}

func (a *API) Handler() http.Handler {
	return a.router
}
