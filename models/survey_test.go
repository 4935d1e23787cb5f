package models

import (
	"testing"
)

func surveyQuestionsFixture() []SurveyQuestion {
	return []SurveyQuestion{
		{Key: "shelf_share", Label: "Shelf share %", Type: "number", Required: true},
		{Key: "chiller_running", Label: "Is the chiller running?", Type: "boolean", Required: true},
		{Key: "competitor", Label: "Main competitor", Type: "choice", Choices: []string{"A", "B", "None"}},
		{Key: "remarks", Label: "Remarks", Type: "text"},
	}
}

func TestValidateAnswers_AllValid(t *testing.T) {
	answers := map[string]interface{}{
		"shelf_share":     float64(35),
		"chiller_running": true,
		"competitor":      "B",
		"remarks":         "restocked",
	}

	if details := validateAnswers(surveyQuestionsFixture(), answers); len(details) != 0 {
		t.Fatalf("expected no validation errors, got %+v", details)
	}
}

func TestValidateAnswers_MissingRequired(t *testing.T) {
	answers := map[string]interface{}{
		"shelf_share": float64(35),
	}

	details := validateAnswers(surveyQuestionsFixture(), answers)

	if len(details) != 1 || details[0].Field != "chiller_running" {
		t.Fatalf("expected chiller_running to be reported missing, got %+v", details)
	}
}

func TestValidateAnswers_TypeMismatchesCollected(t *testing.T) {
	answers := map[string]interface{}{
		"shelf_share":     "a lot",
		"chiller_running": "yes",
	}

	details := validateAnswers(surveyQuestionsFixture(), answers)

	if len(details) != 2 {
		t.Fatalf("expected both type mismatches reported, got %+v", details)
	}
}

func TestValidateAnswers_ChoiceOutsideList(t *testing.T) {
	answers := map[string]interface{}{
		"shelf_share":     float64(10),
		"chiller_running": false,
		"competitor":      "Z",
	}

	details := validateAnswers(surveyQuestionsFixture(), answers)

	if len(details) != 1 || details[0].Field != "competitor" {
		t.Fatalf("expected competitor choice error, got %+v", details)
	}
}

func TestValidateAnswers_UnknownQuestionRejected(t *testing.T) {
	answers := map[string]interface{}{
		"shelf_share":     float64(10),
		"chiller_running": false,
		"mystery":         "?",
	}

	details := validateAnswers(surveyQuestionsFixture(), answers)

	if len(details) != 1 || details[0].Field != "mystery" {
		t.Fatalf("expected unknown question error, got %+v", details)
	}
}

func TestValidateAnswers_OptionalQuestionMayBeOmitted(t *testing.T) {
	answers := map[string]interface{}{
		"shelf_share":     float64(10),
		"chiller_running": true,
	}

	if details := validateAnswers(surveyQuestionsFixture(), answers); len(details) != 0 {
		t.Fatalf("optional questions must be skippable, got %+v", details)
	}
}
