package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/margex/gotrade/internal/domain"
)

type registerUserRequest struct {
	Email string `json:"email"`
}

type registerUserResponse struct {
	ID        string                `json:"id"`
	Email     string                `json:"email"`
	CreatedAt string                `json:"createdAt"`
	Wallet    domain.WalletSnapshot `json:"wallet"`
}

func (s *Server) handleRegisterUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, domain.ErrValidation("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		fail(c, domain.ErrValidation("a valid email is required"))
		return
	}

	user, wallet, err := s.coord.RegisterUser(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, http.StatusCreated, registerUserResponse{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
		Wallet:    wallet,
	})
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, domain.ErrValidation("invalid request body"))
		return
	}

	order, err := s.coord.PlaceOrder(c.Request.Context(), actingUser(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, toOrderResponse(order))
}

func (s *Server) handleListOrders(c *gin.Context) {
	orders := s.coord.OrdersOf(actingUser(c))
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	ok(c, http.StatusOK, out)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.coord.OrderOf(actingUser(c), c.Param("orderID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, toOrderResponse(order))
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	order, err := s.coord.CancelOrder(c.Request.Context(), actingUser(c), c.Param("orderID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, toOrderResponse(order))
}

func (s *Server) handleListPositions(c *gin.Context) {
	openOnly := c.Query("status") == "open"
	positions := s.coord.PositionsOf(actingUser(c), openOnly)
	out := make([]PositionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	ok(c, http.StatusOK, out)
}

func (s *Server) handleGetPosition(c *gin.Context) {
	pos, err := s.coord.PositionOf(actingUser(c), c.Param("positionID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, toPositionResponse(pos))
}

func (s *Server) handleClosePosition(c *gin.Context) {
	trade, err := s.coord.ClosePosition(c.Request.Context(), actingUser(c), c.Param("positionID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, toTradeResponse(trade))
}

func (s *Server) handleGetWallet(c *gin.Context) {
	snapshot, err := s.coord.WalletOf(actingUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, snapshot)
}

func (s *Server) handleListTrades(c *gin.Context) {
	limit, offset := pageParams(c)
	trades, total, err := s.coord.TradesOf(c.Request.Context(), actingUser(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}
	ok(c, http.StatusOK, Page{Items: out, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleListAudit(c *gin.Context) {
	limit, offset := pageParams(c)
	entries, total, err := s.sink.List(actingUser(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, Page{Items: entries, Total: total, Limit: limit, Offset: offset})
}

// pageParams reads limit/offset query params. Limit defaults to 50,
// capped at 200.
func pageParams(c *gin.Context) (int, int) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
