package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/database"
	"storefront/internal/models"
)

type variantResponse struct {
	SKU            string  `json:"sku"`
	Size           string  `json:"size,omitempty"`
	Color          string  `json:"color,omitempty"`
	Price          float64 `json:"price"`
	EffectivePrice float64 `json:"effectivePrice"`
	OnSale         bool    `json:"onSale"`
	InStock        bool    `json:"inStock"`
}

type productResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Category    []string          `json:"category"`
	WeightGrams int               `json:"weightGrams"`
	Variants    []variantResponse `json:"variants"`
}

func toProductResponse(p models.Product) productResponse {
	variants := make([]variantResponse, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, variantResponse{
			SKU:            v.SKU,
			Size:           v.Size,
			Color:          v.Color,
			Price:          v.Price,
			EffectivePrice: v.UnitPrice(),
			OnSale:         v.IsOnSale(),
			InStock:        v.Stock > 0,
		})
	}
	category := []string(p.Category)
	if category == nil {
		category = []string{}
	}
	return productResponse{
		ID:          p.ID.Hex(),
		Title:       p.Title,
		Category:    category,
		WeightGrams: p.WeightGrams,
		Variants:    variants,
	}
}

/*
GET /products
- pagination is optional
- without page and limit every matching product is returned
*/
func GetProducts(products ProductReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products"
		defer handlePanic(c, route)

		filter := database.ProductFilter{
			Category: strings.TrimSpace(c.Query("category")),
			Search:   strings.TrimSpace(c.Query("search")),
		}

		pageStr := c.Query("page")
		limitStr := c.Query("limit")
		paged := pageStr != "" || limitStr != ""
		if paged {
			page, limit, err := parsePaginationParams(pageStr, limitStr)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid pagination params")
				return
			}
			filter.Page = page
			filter.Limit = limit
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		list, total, err := products.ListProducts(ctx, filter)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}

		out := make([]productResponse, 0, len(list))
		for _, p := range list {
			out = append(out, toProductResponse(p))
		}
		if !paged {
			c.JSON(http.StatusOK, out)
			return
		}
		c.JSON(http.StatusOK, paginated(out, filter.Page, filter.Limit, total))
	}
}

func GetProduct(products ProductReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products/:id"
		defer handlePanic(c, route)

		id, ok := parseObjectID(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		product, err := products.FindProduct(ctx, id)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		if !product.Available() {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		c.JSON(http.StatusOK, toProductResponse(product))
	}
}
