package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/apperr"
)

// respondWithAppError maps a service error onto the HTTP contract.
func respondWithAppError(c *gin.Context, route string, err error) {
	var (
		validationErr *apperr.ValidationError
		stockErr      *apperr.OutOfStockError
		notFoundErr   *apperr.NotFoundError
		transitionErr *apperr.TransitionError
		couponErr     *apperr.CouponError
	)

	switch {
	case errors.As(err, &stockErr):
		zap.L().Info("out of stock", zap.String("route", route), zap.String("sku", stockErr.SKU), zap.Int("requested", stockErr.Requested))
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":     "out of stock",
			"sku":       stockErr.SKU,
			"requested": stockErr.Requested,
		})
	case errors.As(err, &validationErr):
		body := gin.H{"error": validationErr.Error()}
		if validationErr.Field != "" {
			body["field"] = validationErr.Field
		}
		zap.L().Info("validation failed", zap.String("route", route), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
	case errors.As(err, &notFoundErr):
		respondWithError(c, http.StatusNotFound, route, notFoundErr.Kind+" not found")
	case errors.As(err, &transitionErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": "illegal status transition",
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})
	case errors.As(err, &couponErr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "coupon invalid",
			"code":   couponErr.Code,
			"result": couponErr.Result,
		})
	case errors.Is(err, apperr.ErrInvalidSignature):
		c.AbortWithStatus(http.StatusBadRequest)
	default:
		zap.L().Error("request failed", zap.String("route", route), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
