package main

import (
	"net/http"

	"bitbucket.org/mmdatafocus/fieldforce_backend/models"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"github.com/gin-gonic/gin"
)

type syncRequest struct {
	Events []*models.SyncEvent `json:"events" binding:"required,min=1,dive"`
}

func syncVisitEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		var req syncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}
		// Events without an explicit visit id target the path visit.
		for _, event := range req.Events {
			if event.VisitId == 0 {
				event.VisitId = visitId
			}
		}

		ctx, span := tracer.Start(c.Request.Context(), "SyncVisitEvents")
		defer span.End()

		results, err := models.SyncVisitEvents(ctx, req.Events)
		if err != nil {
			writeError(c, err)
			return
		}

		visit, err := models.GetVisit(ctx, visitId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"results":     results,
			"sync_status": visit.SyncStatus,
			"sync_errors": visit.SyncErrors,
		})
	}
}
