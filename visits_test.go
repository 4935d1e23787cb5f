package main

import (
	"testing"

	"bitbucket.org/mmdatafocus/fieldforce_backend/utils"
)

func TestSurveyValidationResult_SuccessAndFailureShareShape(t *testing.T) {
	passed := surveyValidationResult(nil)
	if passed["valid"] != true {
		t.Fatalf("expected valid=true, got %+v", passed)
	}
	errs, ok := passed["errors"].([]utils.FieldError)
	if !ok {
		t.Fatalf("errors must always be a field-error list, got %T", passed["errors"])
	}
	if len(errs) != 0 {
		t.Fatalf("expected no errors on success, got %+v", errs)
	}

	failed := surveyValidationResult([]utils.FieldError{{Field: "q_rating", Message: "required"}})
	if failed["valid"] != false {
		t.Fatalf("expected valid=false, got %+v", failed)
	}
	errs, ok = failed["errors"].([]utils.FieldError)
	if !ok || len(errs) != 1 || errs[0].Field != "q_rating" {
		t.Fatalf("expected the q_rating detail, got %+v", failed["errors"])
	}
}
