package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/models"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"bitbucket.org/mmdatafocus/fieldforce_backend/workflow"
	"github.com/gin-gonic/gin"
)

func visitIdFromPath(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("visitId"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid visit id"})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	c.JSON(utils.HTTPStatus(err), utils.ErrorPayload(err))
}

func startVisitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewVisit
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "StartVisit")
		defer span.End()

		result, err := models.StartVisit(ctx, &input)
		if err != nil {
			writeError(c, err)
			return
		}

		// Advisory risk read for the response. Bounded; UNKNOWN when the risk
		// service can't answer in time. The authoritative classification lands
		// asynchronously via the outbox consumer.
		assessment, riskErr := workflow.ClassifyActivityRisk(ctx, config.ActivityEventMessage{
			BusinessId: result.Visit.BusinessId,
			EventType:  string(models.ActivityEventVisitStarted),
			VisitId:    result.Visit.ID,
			AgentId:    result.Visit.AgentId,
			OccurredAt: time.Now().UTC(),
		})
		if riskErr != nil {
			logger := config.GetLogger()
			cid, _ := utils.GetCorrelationIdFromContext(ctx)
			config.LogError(logger, "visits.go", "startVisitHandler", cid, nil, riskErr)
		}

		c.JSON(http.StatusCreated, gin.H{
			"visit_id":            result.Visit.ID,
			"visit":               result.Visit,
			"required_activities": result.RequiredActivities,
			"location_validation": result.LocationValidation,
			"fraud_risk":          assessment.Level,
		})
	}
}

func getVisitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		visit, err := models.GetVisit(c.Request.Context(), visitId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"visit": visit})
	}
}

type recordActivityRequest struct {
	ActivityType models.ActivityType `json:"activity_type" binding:"required"`
	Payload      json.RawMessage     `json:"payload"`
}

func recordActivityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		var req recordActivityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}
		activity, err := models.RecordVisitActivity(c.Request.Context(), visitId, req.ActivityType, req.Payload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"activity": activity})
	}
}

func recordAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		var payload json.RawMessage
		if err := c.ShouldBindJSON(&payload); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}
		activity, err := models.RecordVisitActivity(c.Request.Context(), visitId, models.ActivityTypeAudit, payload)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"activity": activity})
	}
}

// surveyValidationResult mirrors the detail list a ValidationError body
// carries, so success and failure responses share one schema.
func surveyValidationResult(details []utils.FieldError) gin.H {
	if details == nil {
		details = []utils.FieldError{}
	}
	return gin.H{"valid": len(details) == 0, "errors": details}
}

func submitSurveyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		var input models.NewSurveyResponse
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}
		response, err := models.SubmitVisitSurvey(c.Request.Context(), visitId, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"survey_response":   response,
			"validation_result": surveyValidationResult(nil),
		})
	}
}

func createSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		var input models.NewSale
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "CreateVisitSale")
		defer span.End()

		sale, invoice, err := models.CreateVisitSale(ctx, visitId, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"sale":    sale,
			"invoice": invoice,
		})
	}
}

func completeVisitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		var input models.CompleteVisitInput
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "CompleteVisit")
		defer span.End()

		visit, summary, err := models.CompleteVisit(ctx, visitId, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"visit_id":          visit.ID,
			"completion_status": visit.Status,
			"duration_minutes":  summary.DurationMinutes,
			"summary":           summary,
		})
	}
}

type cancelVisitRequest struct {
	Reason string `json:"reason"`
}

func cancelVisitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		var req cancelVisitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, utils.BindingError(err))
			return
		}
		visit, err := models.CancelVisit(c.Request.Context(), visitId, req.Reason)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"visit_id": visit.ID,
			"status":   visit.Status,
		})
	}
}

func exportInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitId, ok := visitIdFromPath(c)
		if !ok {
			return
		}
		saleId, err := strconv.Atoi(c.Param("saleId"))
		if err != nil || saleId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sale id"})
			return
		}

		f, err := models.ExportInvoiceExcel(c.Request.Context(), visitId, saleId)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice-%d.xlsx"`, saleId))
		if err := f.Write(c.Writer); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "visits.go", "exportInvoiceHandler", strconv.Itoa(saleId), nil, err)
		}
	}
}
