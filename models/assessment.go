package models

import "time"

// Assessment is a sponsor progress assessment recorded against a study.
// Assessments are created by the web application; the sync pipeline only
// reads them when computing the due-assessment flag.
type Assessment struct {
	ID          uint      `gorm:"primaryKey;column:id" json:"id"`
	StudyID     uint      `gorm:"column:study_id" json:"study_id"`
	StatusID    int       `gorm:"column:status_id" json:"status_id"`
	CreatedByID *int      `gorm:"column:created_by_id" json:"created_by_id,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name used by Assessment to `assessments`.
func (Assessment) TableName() string {
	return "assessments"
}
