package models

import (
	"bitbucket.org/mmdatafocus/fieldforce_backend/config"
)

// MigrateTable keeps the schema in step with the model structs. Called once
// on startup after the database connection is up.
func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&Customer{},
		&Product{},
		&AgentStock{},
		&Visit{},
		&VisitActivity{},
		&VisitPhoto{},
		&Sale{},
		&SaleItem{},
		&Survey{},
		&SurveyResponse{},
		&IdempotencyKey{},
		&ActivityEventRecord{},
	)
}
