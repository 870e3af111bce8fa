package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/internal/domain"
	"github.com/tournevent/fulfillment/internal/fulfillment"
	"github.com/tournevent/fulfillment/pkg/shipper"
	"go.uber.org/zap"
)

// response is the envelope of every API answer.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Debug   any    `json:"debug,omitempty"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type feeRequest struct {
	City   string             `json:"city" binding:"required"`
	Weight shipper.FlexString `json:"weight" binding:"required"`
}

func (s *Server) ok(c *gin.Context, status int, message string, data any, debug any) {
	resp := response{Success: true, Message: message, Data: data}
	if s.cfg.DebugPayloads {
		resp.Debug = debug
	}
	c.JSON(status, resp)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	resp := response{Success: false, Message: publicMessage(err, status)}
	if s.cfg.DebugPayloads {
		resp.Debug = err.Error()
	}
	c.JSON(status, resp)
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, response{Success: false, Message: message})
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req fulfillment.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body")
		return
	}

	res, err := s.fulfillment.Checkout(c.Request.Context(), &req)
	if err != nil {
		s.fail(c, err)
		return
	}

	var raw any
	if res.Booking != nil && len(res.Booking.Raw) > 0 {
		raw = res.Booking.Raw
	}
	s.ok(c, http.StatusCreated, "Order created", res, raw)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	id, ok := s.orderID(c)
	if !ok {
		return
	}
	view, err := s.fulfillment.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", view, nil)
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	id, ok := s.orderID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "status is required")
		return
	}
	order, err := s.fulfillment.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "Order status updated", order, nil)
}

func (s *Server) handleTrackOrder(c *gin.Context) {
	got, err := s.fulfillment.TrackByOrder(c.Request.Context(), c.Param("orderRef"), c.Param("trackingId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", got, nil)
}

func (s *Server) handleTrackNumber(c *gin.Context) {
	got, err := s.fulfillment.TrackByNumber(c.Request.Context(), c.Param("trackingId"), c.Query("carrier"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", got, nil)
}

func (s *Server) handleTCSTrack(c *gin.Context) {
	got, err := s.fulfillment.TrackWith(c.Request.Context(), domain.CarrierTCS, c.Param("cn"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", got, nil)
}

func (s *Server) handleTCSFee(c *gin.Context) {
	var req feeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "city and weight are required")
		return
	}
	s.quote(c, domain.CarrierTCS, req.City, string(req.Weight))
}

func (s *Server) handleTariff(c *gin.Context) {
	s.quote(c, domain.CarrierPakPost, c.Query("city"), c.Query("weight"))
}

func (s *Server) quote(c *gin.Context, carrier, city, weight string) {
	grams, ok := s.weightGrams(c, weight)
	if !ok {
		return
	}
	fee, err := s.fulfillment.QuoteFee(c.Request.Context(), carrier, city, grams)
	if err != nil {
		s.fail(c, err)
		return
	}
	var raw any
	if len(fee.Raw) > 0 {
		raw = fee.Raw
	}
	s.ok(c, http.StatusOK, "", fee, raw)
}

func (s *Server) handleQuotes(c *gin.Context) {
	grams, ok := s.weightGrams(c, c.Query("weight"))
	if !ok {
		return
	}
	quotes, err := s.fulfillment.QuoteAll(c.Request.Context(), c.Query("city"), grams)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.ok(c, http.StatusOK, "", quotes, nil)
}

func (s *Server) handleListCities(c *gin.Context) {
	cities, err := s.cities.ListByName(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if cities == nil {
		cities = []domain.City{}
	}
	s.ok(c, http.StatusOK, "", cities, nil)
}

func (s *Server) handleResolveZone(c *gin.Context) {
	res, err := s.zones.Resolve(c.Request.Context(), c.Param("origin"), c.Param("destination"))
	if err != nil {
		s.fail(c, err)
		return
	}
	msg := ""
	if !res.Found {
		msg = "city not found"
	}
	s.ok(c, http.StatusOK, msg, res, nil)
}

func (s *Server) orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

// weightGrams parses a weight in grams, rounding fractions up.
func (s *Server) weightGrams(c *gin.Context, raw string) (int, bool) {
	w, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !w.IsPositive() {
		s.logger.Ctx(c.Request.Context()).Debug("Rejected weight", zap.String("weight", raw))
		s.badRequest(c, "weight must be a positive number of grams")
		return 0, false
	}
	if w.GreaterThan(decimal.NewFromInt(fulfillment.MaxWeightGrams)) {
		s.logger.Ctx(c.Request.Context()).Debug("Rejected weight", zap.String("weight", raw))
		s.badRequest(c, fmt.Sprintf("weight must not exceed %d grams", fulfillment.MaxWeightGrams))
		return 0, false
	}
	return int(w.Ceil().IntPart()), true
}
