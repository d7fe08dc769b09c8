package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
	"storefront/internal/orders"
)

// GetAllOrders lists orders for the admin panel, optionally by status.
func GetAllOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		filter := orders.ListFilter{
			Status: models.OrderStatus(strings.TrimSpace(c.Query("status"))),
			Page:   page,
			Limit:  limit,
		}
		list, total, err := svc.ListOrders(ctx, filter)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, paginated(list, page, limit, total))
	}
}

func UpdateOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/api/orders/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectID(c, route)
		if !ok {
			return
		}

		var req orders.UpdateOrderInput
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		order, err := svc.UpdateOrder(ctx, id, req)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

type cancelOrderRequest struct {
	Note string `json:"note"`
}

func CancelOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders/:id/cancel"
		defer handlePanic(c, route)

		id, ok := parseObjectID(c, route)
		if !ok {
			return
		}

		var req cancelOrderRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid request body")
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		order, err := svc.CancelOrder(ctx, id, strings.TrimSpace(req.Note))
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}
