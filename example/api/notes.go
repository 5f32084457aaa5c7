package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pgscope/pgscope/example/notes"
	"github.com/pgscope/pgscope/httpserver/ginsession"
)

var validate = validator.New()

type noteResponse struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (a *API) getNote(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid note id"})
		return
	}

	note, err := a.store.ByID(ctx, ginsession.Session(c), id)
	switch {
	case errors.Is(err, notes.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "note not found"})
		return
	case err != nil:
		ginsession.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, noteResponse(*note))
}

func (a *API) postNote(c *gin.Context) {
	type request struct {
		Title string `json:"title" validate:"required,max=200"`
		Body  string `json:"body" validate:"max=10000"`
		// TTLSeconds is how long the note lives, leave it out to keep the note.
		TTLSeconds int `json:"ttl_seconds" validate:"min=0"`
	}

	ctx := c.Request.Context()

	var req request
	err := c.ShouldBindJSON(&req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid json"})
		return
	}

	err = validate.Struct(req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	s := ginsession.Session(c)
	note, err := a.store.Add(ctx, s, notes.ToAdd{
		Title: req.Title,
		Body:  req.Body,
		TTL:   time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		ginsession.Abort(c, err)
		return
	}
	err = s.Commit(ctx)
	if err != nil {
		ginsession.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, noteResponse(*note))
}

func (a *API) deleteNote(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid note id"})
		return
	}

	s := ginsession.Session(c)
	err = a.store.Delete(ctx, s, id)
	switch {
	case errors.Is(err, notes.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "note not found"})
		return
	case err != nil:
		ginsession.Abort(c, err)
		return
	}
	err = s.Commit(ctx)
	if err != nil {
		ginsession.Abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
