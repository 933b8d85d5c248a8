package models

import "time"

// Organisation represents a sponsor, CRO, CTU or funder organisation known to
// the CPMS registry. The RTS identifier is the registry's stable key; the
// display name is descriptive and may change between runs.
type Organisation struct {
	ID            uint      `gorm:"primaryKey;column:id" json:"id"`
	RTSIdentifier string    `gorm:"column:rts_identifier;uniqueIndex" json:"rts_identifier"`
	Name          string    `gorm:"column:name" json:"name"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name used by Organisation to `organisations`.
func (Organisation) TableName() string {
	return "organisations"
}

// OrganisationRole is a reference row for the closed set of roles an
// organisation can hold relative to a study (sponsor, CRO, managing CTU,
// funder, ...).
type OrganisationRole struct {
	ID            uint      `gorm:"primaryKey;column:id" json:"id"`
	RTSIdentifier string    `gorm:"column:rts_identifier;uniqueIndex" json:"rts_identifier"`
	Name          string    `gorm:"column:name" json:"name"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name used by OrganisationRole to `organisation_roles`.
func (OrganisationRole) TableName() string {
	return "organisation_roles"
}

// OrganisationRoleLink joins an organisation to one of the roles it holds.
// An organisation can hold several roles; each (organisation, role) pair gets
// exactly one row, enforced by the unique index at insert time.
type OrganisationRoleLink struct {
	ID             uint `gorm:"primaryKey;column:id" json:"id"`
	OrganisationID uint `gorm:"column:organisation_id;uniqueIndex:uniq_org_role" json:"organisation_id"`
	RoleID         uint `gorm:"column:role_id;uniqueIndex:uniq_org_role" json:"role_id"`
}

// TableName overrides the table name used by OrganisationRoleLink to `organisation_role_links`.
func (OrganisationRoleLink) TableName() string {
	return "organisation_role_links"
}
