// Package rpc exposes the coordinator engine's Set/Get operations over
// HTTP, the concrete realization of spec.md's "RPC transport" boundary
// (see SPEC_FULL.md §1). The replication marker travels as the
// X-Kvmesh-Replication request header, the HTTP analogue of a gRPC
// metadata entry.
package rpc

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaranSinghDev/kvmesh/internal/coordinator"
	"github.com/KaranSinghDev/kvmesh/internal/peers"
)

// Router mounts the node's RPC surface on a gin.Engine.
type Router struct {
	engine *coordinator.Engine
	logger *zap.Logger
}

// NewRouter returns a Router bound to engine.
func NewRouter(engine *coordinator.Engine, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{engine: engine, logger: logger}
}

// Register mounts /rpc/set and /rpc/get/:key on r.
func (rt *Router) Register(r *gin.Engine) {
	r.Use(recovery(rt.logger), accessLog(rt.logger), rt.requestID())
	r.POST("/rpc/set", rt.handleSet)
	r.GET("/rpc/get/:key", rt.handleGet)
}

// requestID assigns a correlation ID to every inbound call, used only in
// log lines — it never affects routing or replication decisions.
func (rt *Router) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("request_id", uuid.NewString())
		c.Next()
	}
}

type setBody struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type setResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (rt *Router) handleSet(c *gin.Context) {
	var body setBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, setResponse{Error: err.Error()})
		return
	}

	isReplication := c.GetHeader(peers.ReplicationHeader) == "true"
	reqID, _ := c.Get("request_id")

	res, err := rt.engine.Set(c.Request.Context(), body.Key, body.Value, isReplication)
	if err != nil {
		rt.logger.Warn("rpc: Set failed",
			zap.Any("request_id", reqID), zap.String("key", body.Key), zap.Error(err))

		status := http.StatusInternalServerError
		if errors.Is(err, coordinator.ErrEmptyKey) {
			status = http.StatusBadRequest
		}
		c.JSON(status, setResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, setResponse{Success: res.Success})
}

type getResponse struct {
	Value []byte `json:"value,omitempty"`
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

func (rt *Router) handleGet(c *gin.Context) {
	key := c.Param("key")
	reqID, _ := c.Get("request_id")

	res, err := rt.engine.Get(c.Request.Context(), key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, coordinator.ErrEmptyKey) {
			status = http.StatusBadRequest
		}
		c.JSON(status, getResponse{Error: err.Error()})
		return
	}
	rt.logger.Debug("rpc: Get",
		zap.Any("request_id", reqID), zap.String("key", key), zap.Bool("found", res.Found))

	c.JSON(http.StatusOK, getResponse{Value: res.Value, Found: res.Found})
}

// RegisterHealth mounts the liveness/readiness endpoints required by
// spec.md §4.7 / §6 on r. These are typically served on a separate
// listener (port 8080) from the RPC surface.
func RegisterHealth(r *gin.Engine) {
	ok := func(c *gin.Context) { c.String(http.StatusOK, "OK") }
	r.GET("/healthz", ok)
	r.GET("/readyz", ok)
}
