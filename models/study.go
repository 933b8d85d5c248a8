package models

import "time"

// Study represents a study record synchronised from the CPMS registry. The
// CPMS id is the sole idempotency key for upserts; every other field is
// replaced on each sync run.
type Study struct {
	ID                              uint       `gorm:"primaryKey;column:id" json:"id"`
	CpmsID                          int        `gorm:"column:cpms_id;uniqueIndex" json:"cpms_id"`
	Title                           string     `gorm:"column:title" json:"title"`
	ShortTitle                      *string    `gorm:"column:short_title" json:"short_title,omitempty"`
	StudyStatus                     string     `gorm:"column:study_status" json:"study_status"`
	RecordStatus                    string     `gorm:"column:record_status" json:"record_status"`
	Route                           string     `gorm:"column:route" json:"route"`
	IrasID                          *string    `gorm:"column:iras_id" json:"iras_id,omitempty"`
	ProtocolReferenceNumber         *string    `gorm:"column:protocol_reference_number" json:"protocol_reference_number,omitempty"`
	SampleSize                      *int       `gorm:"column:sample_size" json:"sample_size,omitempty"`
	ChiefInvestigatorFirstName      *string    `gorm:"column:chief_investigator_first_name" json:"chief_investigator_first_name,omitempty"`
	ChiefInvestigatorLastName       *string    `gorm:"column:chief_investigator_last_name" json:"chief_investigator_last_name,omitempty"`
	ManagingSpeciality              string     `gorm:"column:managing_speciality" json:"managing_speciality"`
	QualificationDate               *time.Time `gorm:"column:qualification_date" json:"qualification_date,omitempty"`
	PlannedOpeningDate              *time.Time `gorm:"column:planned_opening_date" json:"planned_opening_date,omitempty"`
	PlannedClosureToRecruitmentDate *time.Time `gorm:"column:planned_closure_to_recruitment_date" json:"planned_closure_to_recruitment_date,omitempty"`
	ActualOpeningDate               *time.Time `gorm:"column:actual_opening_date" json:"actual_opening_date,omitempty"`
	ActualClosureToRecruitmentDate  *time.Time `gorm:"column:actual_closure_to_recruitment_date" json:"actual_closure_to_recruitment_date,omitempty"`
	IsDueAssessment                 bool       `gorm:"column:is_due_assessment" json:"is_due_assessment"`
	IsDeleted                       bool       `gorm:"column:is_deleted" json:"is_deleted"`
	CreatedAt                       time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                       time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the table name used by Study to `studies`.
func (Study) TableName() string {
	return "studies"
}

// StudyOrganisation links a study to an organisation holding a given role for
// it. Rows are append-only; duplicates are skipped at insert time.
type StudyOrganisation struct {
	ID                 uint `gorm:"primaryKey;column:id" json:"id"`
	StudyID            uint `gorm:"column:study_id;uniqueIndex:uniq_study_org_role" json:"study_id"`
	OrganisationID     uint `gorm:"column:organisation_id;uniqueIndex:uniq_study_org_role" json:"organisation_id"`
	OrganisationRoleID uint `gorm:"column:organisation_role_id;uniqueIndex:uniq_study_org_role" json:"organisation_role_id"`
}

// TableName overrides the table name used by StudyOrganisation to `study_organisations`.
func (StudyOrganisation) TableName() string {
	return "study_organisations"
}

// StudyFunder links a study to a funding organisation with its grant details.
type StudyFunder struct {
	ID                uint   `gorm:"primaryKey;column:id" json:"id"`
	StudyID           uint   `gorm:"column:study_id;uniqueIndex:uniq_study_funder" json:"study_id"`
	OrganisationID    uint   `gorm:"column:organisation_id;uniqueIndex:uniq_study_funder" json:"organisation_id"`
	GrantCode         string `gorm:"column:grant_code;uniqueIndex:uniq_study_funder" json:"grant_code"`
	FundingStreamName string `gorm:"column:funding_stream_name" json:"funding_stream_name"`
}

// TableName overrides the table name used by StudyFunder to `study_funders`.
func (StudyFunder) TableName() string {
	return "study_funders"
}

// StudyEvaluationCategory is a point-in-time risk/milestone indicator for a
// study. Rows are historical records, inserted without deduplication.
type StudyEvaluationCategory struct {
	ID                          uint       `gorm:"primaryKey;column:id" json:"id"`
	StudyID                     uint       `gorm:"column:study_id" json:"study_id"`
	IndicatorType               string     `gorm:"column:indicator_type" json:"indicator_type"`
	IndicatorValue              string     `gorm:"column:indicator_value" json:"indicator_value"`
	SampleSize                  *int       `gorm:"column:sample_size" json:"sample_size,omitempty"`
	TotalRecruitmentToDate      *int       `gorm:"column:total_recruitment_to_date" json:"total_recruitment_to_date,omitempty"`
	PlannedRecruitmentStartDate *time.Time `gorm:"column:planned_recruitment_start_date" json:"planned_recruitment_start_date,omitempty"`
	PlannedRecruitmentEndDate   *time.Time `gorm:"column:planned_recruitment_end_date" json:"planned_recruitment_end_date,omitempty"`
	ActualOpeningDate           *time.Time `gorm:"column:actual_opening_date" json:"actual_opening_date,omitempty"`
	ActualClosureDate           *time.Time `gorm:"column:actual_closure_date" json:"actual_closure_date,omitempty"`
	ExpectedReopenDate          *time.Time `gorm:"column:expected_reopen_date" json:"expected_reopen_date,omitempty"`
	CreatedAt                   time.Time  `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the table name used by StudyEvaluationCategory to `study_evaluation_categories`.
func (StudyEvaluationCategory) TableName() string {
	return "study_evaluation_categories"
}
