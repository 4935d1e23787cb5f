package models

import (
	"testing"
)

func TestResolveActivityRequirements_StandardCustomer(t *testing.T) {
	customer := &Customer{CustomerType: CustomerTypeStandard}

	requirements := ResolveActivityRequirements(customer)

	if len(requirements) != 3 {
		t.Fatalf("expected 3 baseline requirements, got %d", len(requirements))
	}
	byType := map[ActivityType]int{}
	for _, req := range requirements {
		byType[req.ActivityType] = req.MinCount
	}
	if byType[ActivityTypeArrival] != 1 || byType[ActivityTypePhoto] != 2 || byType[ActivityTypeDeparture] != 1 {
		t.Fatalf("unexpected baseline requirements: %+v", byType)
	}
}

func TestResolveActivityRequirements_KeyAccountAddsSurveyAndAudit(t *testing.T) {
	customer := &Customer{CustomerType: CustomerTypeKeyAccount}

	requirements := ResolveActivityRequirements(customer)

	if len(requirements) != 5 {
		t.Fatalf("expected 5 requirements for key account, got %d", len(requirements))
	}
	byType := map[ActivityType]int{}
	for _, req := range requirements {
		byType[req.ActivityType] = req.MinCount
	}
	if byType[ActivityTypeSurvey] != 1 || byType[ActivityTypeAudit] != 1 {
		t.Fatalf("expected survey and audit requirements, got %+v", byType)
	}
}

func TestEvaluateCompletion_MissingPhotosMessage(t *testing.T) {
	requirements := ResolveActivityRequirements(&Customer{CustomerType: CustomerTypeStandard})
	counts := map[ActivityType]int{
		ActivityTypeArrival: 1,
		ActivityTypePhoto:   1,
	}

	missing := EvaluateCompletion(requirements, counts)

	if len(missing) != 1 {
		t.Fatalf("expected exactly one missing requirement, got %v", missing)
	}
	if missing[0] != "At least 2 photos required" {
		t.Fatalf("unexpected missing message: %q", missing[0])
	}
}

func TestEvaluateCompletion_OrderOfActivitiesNeverMatters(t *testing.T) {
	// Counts carry no ordering: a photo taken before arrival still counts.
	requirements := ResolveActivityRequirements(&Customer{CustomerType: CustomerTypeStandard})
	counts := map[ActivityType]int{
		ActivityTypePhoto:   2,
		ActivityTypeArrival: 1,
		ActivityTypeSale:    3,
	}

	if missing := EvaluateCompletion(requirements, counts); len(missing) != 0 {
		t.Fatalf("expected no missing requirements, got %v", missing)
	}
}

func TestEvaluateCompletion_DepartureFulfilledByCompletion(t *testing.T) {
	requirements := ResolveActivityRequirements(&Customer{CustomerType: CustomerTypeStandard})
	counts := map[ActivityType]int{
		ActivityTypeArrival: 1,
		ActivityTypePhoto:   2,
		// no departure recorded yet
	}

	if missing := EvaluateCompletion(requirements, counts); len(missing) != 0 {
		t.Fatalf("departure must not block completion, got %v", missing)
	}
}

func TestEvaluateCompletion_KeyAccountMissingSurveyAndAudit(t *testing.T) {
	requirements := ResolveActivityRequirements(&Customer{CustomerType: CustomerTypeKeyAccount})
	counts := map[ActivityType]int{
		ActivityTypeArrival: 1,
		ActivityTypePhoto:   2,
	}

	missing := EvaluateCompletion(requirements, counts)

	if len(missing) != 2 {
		t.Fatalf("expected survey and audit to be missing, got %v", missing)
	}
}
