package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/shipping"
)

func GetShippingConfig(store ShippingSettingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/shipping"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		cfg, err := store.ShippingConfig(ctx)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

func UpdateShippingConfig(store ShippingSettingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/shipping"
		defer handlePanic(c, route)

		var cfg models.ShippingConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}
		if err := shipping.Validate(cfg); err != nil {
			respondWithAppError(c, route, err)
			return
		}
		cfg.UpdatedAt = time.Now().UTC()

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := store.SaveShippingConfig(ctx, cfg); err != nil {
			respondWithAppError(c, route, err)
			return
		}
		zap.L().Info("shipping config updated", zap.Int("tiers", len(cfg.Tiers)))
		c.JSON(http.StatusOK, cfg)
	}
}
