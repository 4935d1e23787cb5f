package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/fieldforce_backend/models"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/gin-gonic/gin"
)

func createCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"customer": customer})
	}
}

type replenishStockRequest struct {
	BusinessId string             `json:"business_id" binding:"required"`
	AgentId    int                `json:"agent_id" binding:"required"`
	Lines      []models.StockLine `json:"lines" binding:"required,min=1"`
}

// Warehouse checkout. Ops surface, same auth gate as the outbox replay.
func replenishStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUsernameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req replenishStockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}
		if err := models.ReplenishAgentStock(c.Request.Context(), req.BusinessId, req.AgentId, req.Lines); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"business_id": req.BusinessId,
			"agent_id":    req.AgentId,
			"loaded":      len(req.Lines),
		})
	}
}
