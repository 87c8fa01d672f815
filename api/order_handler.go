package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"order-engine-go/order"
)

// handleSubmit 提交订单并入队。
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	o, ok := s.acceptOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		OrderID: o.ID,
		Message: "Order submitted successfully",
	})
}

// handleExecute 提交订单并返回该订单的推送地址。
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	o, ok := s.acceptOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{
		OrderID:      o.ID,
		Message:      "Order submitted successfully",
		WebsocketURL: fmt.Sprintf("/ws/orders/%s", o.ID),
		Status:       string(order.StatusPending),
	})
}

// acceptOrder 校验、落库、入队三步的公共路径。
func (s *Server) acceptOrder(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "Validation failed",
			Details: []string{"invalid JSON body"},
		})
		return nil, false
	}
	if details := req.Validate(); len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "Validation failed",
			Details: details,
		})
		return nil, false
	}

	o, err := s.engine.Submit(r.Context(), req.Submission())
	if err != nil {
		s.logger.Error("order submission failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to process order",
			Message: err.Error(),
		})
		return nil, false
	}

	if err := s.scheduler.Enqueue(o.ID, o.Type.Priority()); err != nil {
		s.logger.Error("order enqueue failed", zap.String("order_id", o.ID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:   "Failed to process order",
			Message: err.Error(),
		})
		return nil, false
	}
	return o, true
}

// handleGetOrder 按 id 查询订单。
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]
	if _, err := uuid.Parse(orderID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "Invalid order ID",
			Details: []string{"orderId must be a UUID"},
		})
		return
	}

	o, err := s.engine.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Order not found"})
			return
		}
		s.logger.Error("get order failed", zap.String("order_id", orderID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// handleListOrders 最近订单列表，limit 默认 50。
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	orders, err := s.engine.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list orders failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
