package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
	"gorm.io/gorm"
)

// Survey holds a question schema as JSON. Question types: text, number,
// boolean, choice.
type Survey struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;index;not null" json:"business_id"`
	Name       string          `gorm:"size:100;not null" json:"name"`
	Questions  json.RawMessage `gorm:"type:json" json:"questions"`
	IsActive   *bool           `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SurveyQuestion struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Choices  []string `json:"choices,omitempty"`
}

type SurveyResponse struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;index;not null" json:"business_id"`
	SurveyId   int             `gorm:"index;not null" json:"survey_id"`
	VisitId    int             `gorm:"index;not null" json:"visit_id"`
	AgentId    int             `gorm:"index;not null" json:"agent_id"`
	Answers    json.RawMessage `gorm:"type:json" json:"answers"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSurveyResponse struct {
	SurveyId int                    `json:"survey_id" binding:"required"`
	Answers  map[string]interface{} `json:"answers" binding:"required"`
}

func (s *Survey) questionSchema() ([]SurveyQuestion, error) {
	var questions []SurveyQuestion
	if err := utils.UnmarshalFromJSON(s.Questions, &questions); err != nil {
		return nil, &utils.StorageError{Err: fmt.Errorf("survey %d has malformed question schema: %w", s.ID, err)}
	}
	return questions, nil
}

// validateAnswers checks the answer map against the schema and collects every
// problem rather than failing on the first.
func validateAnswers(questions []SurveyQuestion, answers map[string]interface{}) []utils.FieldError {
	var details []utils.FieldError
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.Key] = true
		value, ok := answers[q.Key]
		if !ok || value == nil {
			if q.Required {
				details = append(details, utils.FieldError{Field: q.Key, Message: "answer required"})
			}
			continue
		}
		switch q.Type {
		case "text":
			if _, ok := value.(string); !ok {
				details = append(details, utils.FieldError{Field: q.Key, Message: "must be a string"})
			}
		case "number":
			if _, ok := value.(float64); !ok {
				details = append(details, utils.FieldError{Field: q.Key, Message: "must be a number"})
			}
		case "boolean":
			if _, ok := value.(bool); !ok {
				details = append(details, utils.FieldError{Field: q.Key, Message: "must be a boolean"})
			}
		case "choice":
			s, ok := value.(string)
			if !ok {
				details = append(details, utils.FieldError{Field: q.Key, Message: "must be a string"})
				continue
			}
			found := false
			for _, c := range q.Choices {
				if c == s {
					found = true
					break
				}
			}
			if !found {
				details = append(details, utils.FieldError{Field: q.Key, Message: fmt.Sprintf("must be one of %v", q.Choices)})
			}
		default:
			details = append(details, utils.FieldError{Field: q.Key, Message: "unknown question type " + q.Type})
		}
	}
	for key := range answers {
		if !known[key] {
			details = append(details, utils.FieldError{Field: key, Message: "unknown question"})
		}
	}
	return details
}

func getActiveSurvey(tx *gorm.DB, ctx context.Context, businessId string, surveyId int) (*Survey, error) {
	var survey Survey
	err := tx.WithContext(ctx).
		Where("business_id = ? AND id = ? AND is_active = true", businessId, surveyId).
		First(&survey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("survey")
		}
		return nil, err
	}
	return &survey, nil
}

// SubmitVisitSurvey validates answers against the survey schema, stores the
// response and appends the survey activity in one transaction.
func SubmitVisitSurvey(ctx context.Context, visitId int, input *NewSurveyResponse) (*SurveyResponse, error) {
	businessId, agentId, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()

	var created *SurveyResponse
	err = func() error {
		tx := db.Begin()
		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback().Error
				panic(r)
			}
		}()
		defer func() { _ = tx.Rollback().Error }()

		visit, err := getOwnedVisit(tx, ctx, businessId, agentId, visitId)
		if err != nil {
			return err
		}
		if err := ensureVisitInProgress(visit); err != nil {
			return err
		}

		survey, err := getActiveSurvey(tx, ctx, businessId, input.SurveyId)
		if err != nil {
			return err
		}
		questions, err := survey.questionSchema()
		if err != nil {
			return err
		}
		if details := validateAnswers(questions, input.Answers); len(details) > 0 {
			return utils.NewValidationError("survey answers invalid", details...)
		}

		answersJSON, err := json.Marshal(input.Answers)
		if err != nil {
			return err
		}
		response := SurveyResponse{
			BusinessId: businessId,
			SurveyId:   survey.ID,
			VisitId:    visitId,
			AgentId:    agentId,
			Answers:    answersJSON,
		}
		if err := tx.WithContext(ctx).Create(&response).Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		activityPayload := SurveyActivityPayload{
			SurveyId:         survey.ID,
			SurveyResponseId: response.ID,
		}
		payloadJSON, err := utils.MarshalToJSON(activityPayload)
		if err != nil {
			return err
		}
		activity := VisitActivity{
			BusinessId:   businessId,
			VisitId:      visitId,
			ActivityType: ActivityTypeSurvey,
			Required:     utils.NewFalse(),
			Completed:    utils.NewTrue(),
			ActivityTime: time.Now().UTC(),
			ReferenceId:  response.ID,
			Payload:      []byte(payloadJSON),
		}
		if err := tx.WithContext(ctx).Create(&activity).Error; err != nil {
			return &utils.StorageError{Err: err}
		}

		if err := tx.Commit().Error; err != nil {
			return &utils.StorageError{Err: err}
		}
		created = &response
		return nil
	}()
	if err != nil {
		return nil, err
	}
	return created, nil
}
