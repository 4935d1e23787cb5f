package models

import "fmt"

// ActivityRequirement is one entry of a visit's mandatory checklist.
type ActivityRequirement struct {
	ActivityType ActivityType `json:"activity_type"`
	MinCount     int          `json:"min_count"`
	Required     bool         `json:"required"`
}

// ResolveActivityRequirements computes the mandatory activity set for a visit
// to the given customer. Stateless: customer tags may change between visits,
// so this is re-evaluated at both start and complete time.
func ResolveActivityRequirements(customer *Customer) []ActivityRequirement {
	requirements := []ActivityRequirement{
		{ActivityType: ActivityTypeArrival, MinCount: 1, Required: true},
		{ActivityType: ActivityTypePhoto, MinCount: 2, Required: true},
		{ActivityType: ActivityTypeDeparture, MinCount: 1, Required: true},
	}
	if customer != nil && customer.CustomerType == CustomerTypeKeyAccount {
		requirements = append(requirements,
			ActivityRequirement{ActivityType: ActivityTypeSurvey, MinCount: 1, Required: true},
			ActivityRequirement{ActivityType: ActivityTypeAudit, MinCount: 1, Required: true},
		)
	}
	return requirements
}

// EvaluateCompletion compares the resolved requirements against the activity
// counts of the visit log and returns the structured list of missing items.
// Order of activities never matters, only counts. The departure requirement is
// excluded: it is fulfilled by the complete operation itself.
func EvaluateCompletion(requirements []ActivityRequirement, counts map[ActivityType]int) []string {
	var missing []string
	for _, req := range requirements {
		if !req.Required || req.ActivityType == ActivityTypeDeparture {
			continue
		}
		if counts[req.ActivityType] >= req.MinCount {
			continue
		}
		missing = append(missing, missingRequirementMessage(req))
	}
	return missing
}

func missingRequirementMessage(req ActivityRequirement) string {
	noun := string(req.ActivityType)
	if req.MinCount > 1 {
		noun += "s"
	}
	return fmt.Sprintf("At least %d %s required", req.MinCount, noun)
}
