package models

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireAgentVisitLock serializes visit-start and sale composition per agent
// across instances using MySQL advisory locks. This is the serialization
// boundary that upholds the single-active-visit and non-negative-stock
// invariants.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB transaction that will do the writes.
func AcquireAgentVisitLock(tx *gorm.DB, businessId string, agentId int) error {
	lockName := fmt.Sprintf("visit:%s:%d", businessId, agentId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire visit lock for agent_id=%d", agentId)
	}
	return nil
}

func ReleaseAgentVisitLock(tx *gorm.DB, businessId string, agentId int) {
	lockName := fmt.Sprintf("visit:%s:%d", businessId, agentId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
