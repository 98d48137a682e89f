package handler

import (
	"errors"
	"net/http"

	"avanspay/pkg/gateway"

	"github.com/gin-gonic/gin"
)

type GatewayHandler struct {
	gw gateway.Provider
}

func NewGatewayHandler(gw gateway.Provider) *GatewayHandler {
	return &GatewayHandler{gw: gw}
}

// Balance surfaces the merchant float held at the gateway.
func (h *GatewayHandler) Balance(c *gin.Context) {
	balance, err := h.gw.Balance(c.Request.Context())
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "gateway unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "balance query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance_minor": balance})
}
