// Package server exposes the execution engine over HTTP. Identity
// comes from the X-User-ID header; every response uses the ApiResponse
// envelope.
package server

import (
	"expvar"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/margex/gotrade/internal/audit"
	"github.com/margex/gotrade/internal/settle"
	"github.com/margex/gotrade/pkg/ratelimit"
)

type Server struct {
	coord   *settle.Coordinator
	sink    audit.Sink
	limiter *ratelimit.PerUser
	log     *logrus.Entry
}

func New(coord *settle.Coordinator, sink audit.Sink, limiter *ratelimit.PerUser, log *logrus.Entry) *Server {
	return &Server{coord: coord, sink: sink, limiter: limiter, log: log}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	api := r.Group("/api")

	// Registration is the one call made before a user id exists.
	api.POST("/users", s.handleRegisterUser)

	authed := api.Group("")
	authed.Use(authMiddleware(), rateLimitMiddleware(s.limiter))

	orders := authed.Group("/orders")
	orders.POST("", s.handlePlaceOrder)
	orders.GET("", s.handleListOrders)
	orders.GET("/:orderID", s.handleGetOrder)
	orders.DELETE("/:orderID", s.handleCancelOrder)

	positions := authed.Group("/positions")
	positions.GET("", s.handleListPositions)
	positions.GET("/:positionID", s.handleGetPosition)
	positions.POST("/:positionID/close", s.handleClosePosition)

	authed.GET("/wallet", s.handleGetWallet)
	authed.GET("/trades", s.handleListTrades)
	authed.GET("/audit", s.handleListAudit)

	return r
}
