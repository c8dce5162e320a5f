package handler

import (
	"net/http"

	"github.com/GoPolymarket/polysession/internal/clob"
	"github.com/GoPolymarket/polysession/internal/middleware"
	"github.com/GoPolymarket/polysession/internal/model"
	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orders OrderGateway
}

func NewOrderHandler(orders OrderGateway) *OrderHandler {
	return &OrderHandler{orders: orders}
}

func (h *OrderHandler) Active(c *gin.Context) {
	if h.orders == nil {
		notConfigured(c)
		return
	}
	var q model.ActiveOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "Missing API credentials")
		return
	}

	orders, err := h.orders.GetOpenOrders(c.Request.Context(), q.Credentials())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	if h.orders == nil {
		notConfigured(c)
		return
	}
	var req model.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid order request")
		return
	}

	in := clob.PlaceOrderRequest{
		TokenID:       req.TokenID,
		Size:          req.Size,
		Side:          req.Side,
		Price:         req.Price,
		IsMarketOrder: req.IsMarketOrder,
		NegRisk:       req.NegRisk,
		Credentials:   req.APICredentials,
	}
	if req.Order != nil {
		side, err := clob.ParseSide(req.Order.Side)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		in.Order = &clob.LimitOrderArgs{
			TokenID:    req.Order.TokenID,
			Side:       side,
			Size:       req.Order.Size,
			Price:      req.Order.Price,
			Expiration: req.Order.Expiration,
			FeeRateBps: req.Order.FeeRateBps,
			Taker:      req.Order.Taker,
		}
	}

	middleware.AddAuditContext(c, "action", "place_order")
	id, err := h.orders.PlaceOrder(c.Request.Context(), in)
	if err != nil {
		abort(c, err)
		return
	}

	middleware.AddAuditContext(c, "order_id", id)
	c.JSON(http.StatusOK, model.PlaceOrderResponse{Success: true, OrderID: id})
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	if h.orders == nil {
		notConfigured(c)
		return
	}
	var req model.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing order ID")
		return
	}

	if err := h.orders.CancelOrder(c.Request.Context(), req.OrderID, req.APICredentials); err != nil {
		abort(c, err)
		return
	}

	middleware.AddAuditContext(c, "action", "cancel_order")
	middleware.AddAuditContext(c, "order_id", req.OrderID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
