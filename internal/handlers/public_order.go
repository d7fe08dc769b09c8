package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/orders"
)

/* =========================
   CREATE ORDER
========================= */

// CreateOrder places an order for a guest or, when a bearer token is sent,
// for the authenticated customer.
func CreateOrder(svc OrderService, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		var req orders.CreateOrderInput
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		userID, err := userIDFromHeader(c.GetHeader("Authorization"), jwtSecret)
		if err != nil {
			zap.L().Warn("token validation failed", zap.String("route", route), zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		req.UserID = userID

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		order, err := svc.CreateOrder(ctx, req)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"orderId": order.ID.Hex(),
			"order":   order,
			"message": "order created",
		})
	}
}

/* =========================
   READ ORDERS
========================= */

// GetOrder returns the full order to its owner: the customer whose token
// placed it, or for guest orders whoever supplies the order email. Anyone
// else gets 404, the same as for a missing order.
func GetOrder(svc OrderService, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectID(c, route)
		if !ok {
			return
		}

		userID, err := userIDFromHeader(c.GetHeader("Authorization"), jwtSecret)
		if err != nil {
			zap.L().Warn("token validation failed", zap.String("route", route), zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		order, err := svc.GetOrder(ctx, id)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		if !canViewOrder(order, userID, c.Query("email")) {
			respondWithError(c, http.StatusNotFound, route, "order not found")
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func canViewOrder(order models.Order, userID *primitive.ObjectID, email string) bool {
	if order.UserID != nil {
		return userID != nil && *userID == *order.UserID
	}
	email = strings.TrimSpace(email)
	return email != "" && strings.EqualFold(email, order.Email)
}

// GetOrderStatus serves the lightweight status view polled by the
// payment return page.
func GetOrderStatus(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id/status"
		defer handlePanic(c, route)

		id, ok := parseObjectID(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		view, err := svc.OrderStatus(ctx, id)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"orderId":       id.Hex(),
			"status":        view.Status,
			"paymentStatus": view.PaymentStatus,
			"updatedAt":     view.UpdatedAt,
		})
	}
}

// GetUserOrders lists the authenticated customer's orders.
func GetUserOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /user/orders"
		defer handlePanic(c, route)

		userID, ok := c.Get("userId")
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}
		id, ok := userID.(primitive.ObjectID)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		list, total, err := svc.ListOrders(ctx, orders.ListFilter{UserID: &id, Page: page, Limit: limit})
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, paginated(list, page, limit, total))
	}
}

func userIDFromHeader(header, secret string) (*primitive.ObjectID, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.New("invalid token format")
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userIDValue, ok := claims["userId"].(string)
	if !ok || strings.TrimSpace(userIDValue) == "" {
		return nil, errors.New("userId claim missing")
	}

	userID, err := primitive.ObjectIDFromHex(userIDValue)
	if err != nil {
		return nil, errors.New("invalid userId")
	}

	return &userID, nil
}
