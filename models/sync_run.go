package models

import "time"

// RegistrySyncRun records one execution of the registry sync job.
type RegistrySyncRun struct {
	ID                    uint64     `gorm:"primaryKey;column:id" json:"id"`
	RunUUID               string     `gorm:"column:run_uuid;uniqueIndex" json:"run_uuid"`
	TriggerSource         string     `gorm:"column:trigger_source" json:"trigger_source"`
	Status                string     `gorm:"column:status" json:"status"`
	StartedAt             time.Time  `gorm:"column:started_at" json:"started_at"`
	FinishedAt            *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	TotalRecords          *int       `gorm:"column:total_records" json:"total_records,omitempty"`
	PagesFetched          int        `gorm:"column:pages_fetched" json:"pages_fetched"`
	StudiesUpserted       int        `gorm:"column:studies_upserted" json:"studies_upserted"`
	OrganisationsUpserted int        `gorm:"column:organisations_upserted" json:"organisations_upserted"`
	StudiesFlaggedDue     int        `gorm:"column:studies_flagged_due" json:"studies_flagged_due"`
	ErrorMessage          *string    `gorm:"column:error_message" json:"error_message,omitempty"`
}

// TableName overrides the table name used by RegistrySyncRun to `registry_sync_runs`.
func (RegistrySyncRun) TableName() string {
	return "registry_sync_runs"
}

// RegistryAPIRequest is an audit row for a single page request issued against
// the CPMS registry API. Credential headers are never recorded.
type RegistryAPIRequest struct {
	ID             uint64    `gorm:"primaryKey;column:id" json:"id"`
	RunID          uint64    `gorm:"column:run_id" json:"run_id"`
	HTTPMethod     string    `gorm:"column:http_method" json:"http_method"`
	Endpoint       string    `gorm:"column:endpoint" json:"endpoint"`
	QueryParams    *string   `gorm:"column:query_params" json:"query_params,omitempty"`
	ResponseStatus *int      `gorm:"column:response_status" json:"response_status,omitempty"`
	ResponseTimeMs *int      `gorm:"column:response_time_ms" json:"response_time_ms,omitempty"`
	PageNumber     *int      `gorm:"column:page_number" json:"page_number,omitempty"`
	PageSize       *int      `gorm:"column:page_size" json:"page_size,omitempty"`
	ItemsReturned  *int      `gorm:"column:items_returned" json:"items_returned,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the table name used by RegistryAPIRequest to `registry_api_requests`.
func (RegistryAPIRequest) TableName() string {
	return "registry_api_requests"
}
