// Package api exposes the pull surface over HTTP: server CRUD, action
// dispatch, console input, health ping, and Prometheus metrics.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warden-sh/warden/internal/instance"
	"github.com/warden-sh/warden/internal/metrics"
	"github.com/warden-sh/warden/internal/process"
	"github.com/warden-sh/warden/internal/record"
	"github.com/warden-sh/warden/internal/registry"
)

// Router serves the API for one registry.
// Endpoints (token-authenticated unless noted):
//
//	GET    /ping                 liveness, no auth
//	GET    /metrics              Prometheus exposition, no auth
//	GET    /authorize            reports whether the presented token passes
//	GET    /servers?q=frag       list / autocomplete
//	POST   /servers              create from a record body
//	GET    /servers/:id          snapshot
//	PATCH  /servers/:id          partial update
//	DELETE /servers/:id?purge=1  detach, optionally removing the record file
//	POST   /servers/:id/start
//	POST   /servers/:id/stop
//	POST   /servers/:id/restart
//	POST   /servers/:id/console  body: {"line": "..."}
type Router struct {
	reg   *registry.Registry
	token string
}

func NewRouter(reg *registry.Registry, token string) *Router {
	return &Router{reg: reg, token: token}
}

// Handler returns the gin handler so embedders can mount it themselves.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())

	g.GET("/ping", handlePing)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := g.Group("", r.requireToken)
	auth.GET("/authorize", handleAuthorize)
	auth.GET("/servers", r.handleList)
	auth.POST("/servers", r.handleCreate)
	auth.GET("/servers/:id", r.handleGet)
	auth.PATCH("/servers/:id", r.handleUpdate)
	auth.DELETE("/servers/:id", r.handleDelete)
	auth.POST("/servers/:id/start", r.handleAction(record.ActionStart))
	auth.POST("/servers/:id/stop", r.handleAction(record.ActionStop))
	auth.POST("/servers/:id/restart", r.handleAction(record.ActionRestart))
	auth.POST("/servers/:id/console", r.handleConsole)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, reg *registry.Registry, token string) *http.Server {
	r := NewRouter(reg, token)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second, // stop waits out the grace window
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// requireToken accepts the configured token either raw or as a Bearer
// credential. An empty configured token disables authentication.
func (r *Router) requireToken(c *gin.Context) {
	if r.token == "" {
		return
	}
	got := c.GetHeader("Authorization")
	got = strings.TrimPrefix(got, "Bearer ")
	if got != r.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}

func handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"type": "Ping", "message": "Pong!"})
}

func handleAuthorize(c *gin.Context) {
	// requireToken already ran; reaching here means the credentials pass.
	c.JSON(http.StatusOK, gin.H{"authorized": true})
}

func apiActor() registry.Actor {
	return registry.Actor{ID: "api", Permissions: []string{registry.PermissionAll}}
}

func (r *Router) handleList(c *gin.Context) {
	if q := c.Query("q"); q != "" {
		c.JSON(http.StatusOK, r.reg.Autocomplete(q))
		return
	}
	c.JSON(http.StatusOK, r.reg.List())
}

func (r *Router) handleCreate(c *gin.Context) {
	var rec record.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ServerCreateFailed", "message": "invalid JSON: " + err.Error()})
		return
	}
	snap, err := r.reg.Create(c.Request.Context(), rec)
	if err != nil {
		writeError(c, err, "ServerCreateFailed")
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (r *Router) handleGet(c *gin.Context) {
	inst, err := r.reg.Get(c.Param("id"))
	if err != nil {
		writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, inst.Snapshot())
}

func (r *Router) handleUpdate(c *gin.Context) {
	var patch record.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ServerUpdateFailed", "message": "invalid JSON: " + err.Error()})
		return
	}
	snap, err := r.reg.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err, "ServerUpdateFailed")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleDelete(c *gin.Context) {
	purge := c.Query("purge") == "1" || c.Query("purge") == "true"
	if err := r.reg.Delete(c.Request.Context(), c.Param("id"), purge); err != nil {
		writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := r.reg.Dispatch(c.Request.Context(), c.Param("id"), action, apiActor())
		if err != nil {
			writeActionError(c, err, snap)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func (r *Router) handleConsole(c *gin.Context) {
	var body struct {
		Line string `json:"line"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Line == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ConsoleWriteFailed", "message": "body must carry a non-empty line"})
		return
	}
	inst, err := r.reg.Get(c.Param("id"))
	if err != nil {
		writeError(c, err, "")
		return
	}
	if err := inst.Console(body.Line); err != nil {
		writeError(c, err, "ConsoleWriteFailed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// writeError maps domain errors onto the wire contract. code overrides the
// generic label for validation failures.
func writeError(c *gin.Context, err error, code string) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ServerNotFound", "id": c.Param("id")})
	case errors.Is(err, registry.ErrPermission):
		c.JSON(http.StatusForbidden, gin.H{"error": "PermissionDenied", "message": err.Error()})
	case errors.Is(err, registry.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "ServerExists", "message": err.Error()})
	case errors.Is(err, record.ErrValidation), errors.Is(err, instance.ErrMutableWhileRunning):
		if code == "" {
			code = "ValidationFailed"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": err.Error()})
	case errors.Is(err, process.ErrAlreadyRunning), errors.Is(err, process.ErrNotRunning):
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidState", "message": err.Error()})
	default:
		if code == "" {
			code = "InternalError"
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": code, "message": err.Error()})
	}
}

// writeActionError additionally attaches the snapshot on a stop that timed
// out, so callers can show the still-running server.
func writeActionError(c *gin.Context, err error, snap record.Snapshot) {
	if errors.Is(err, instance.ErrStopFailed) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ServerStopFailed", "server": snap})
		return
	}
	writeError(c, err, "")
}
