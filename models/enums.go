package models

type VisitStatus string

const (
	VisitStatusPlanned    VisitStatus = "Planned"
	VisitStatusInProgress VisitStatus = "InProgress"
	VisitStatusCompleted  VisitStatus = "Completed"
	VisitStatusFailed     VisitStatus = "Failed"
	VisitStatusCancelled  VisitStatus = "Cancelled"
)

type ActivityType string

const (
	ActivityTypeArrival   ActivityType = "arrival"
	ActivityTypePhoto     ActivityType = "photo"
	ActivityTypeSurvey    ActivityType = "survey"
	ActivityTypeSale      ActivityType = "sale"
	ActivityTypeAudit     ActivityType = "audit"
	ActivityTypeDeparture ActivityType = "departure"
)

type SyncStatus string

const (
	SyncStatusLocal  SyncStatus = "Local"
	SyncStatusSynced SyncStatus = "Synced"
	SyncStatusError  SyncStatus = "Error"
)

type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodCredit      PaymentMethod = "CREDIT"
	PaymentMethodMobileMoney PaymentMethod = "MOBILE_MONEY"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCredit, PaymentMethodMobileMoney:
		return true
	}
	return false
}

type CustomerType string

const (
	CustomerTypeStandard   CustomerType = "Standard"
	CustomerTypeKeyAccount CustomerType = "KeyAccount"
)

// RiskLevel is the classifier's verdict. UNKNOWN is the degraded fallback when
// the risk service is unavailable; it must never block a workflow.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
	RiskLevelUnknown  RiskLevel = "UNKNOWN"
)

func (r RiskLevel) Alertable() bool {
	return r == RiskLevelHigh || r == RiskLevelCritical
}

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical, RiskLevelUnknown:
		return true
	}
	return false
}

type ActivityEventType string

const (
	ActivityEventVisitStarted   ActivityEventType = "visit.started"
	ActivityEventVisitCompleted ActivityEventType = "visit.completed"
	ActivityEventVisitCancelled ActivityEventType = "visit.cancelled"
	ActivityEventSaleCreated    ActivityEventType = "sale.created"
)
