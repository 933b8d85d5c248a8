package services

import (
	"strings"
	"time"
)

// StudyRecord is one study entry from a CPMS registry page. Field names follow
// the registry's PascalCase payload.
type StudyRecord struct {
	ID                              int                        `json:"Id"`
	Title                           string                     `json:"Title"`
	ShortTitle                      string                     `json:"ShortTitle"`
	StudyStatus                     string                     `json:"StudyStatus"`
	StudyRecordStatus               string                     `json:"StudyRecordStatus"`
	StudyRoute                      string                     `json:"StudyRoute"`
	IrasID                          string                     `json:"IrasId"`
	ProtocolReferenceNumber         string                     `json:"ProtocolReferenceNumber"`
	SampleSize                      *int                       `json:"SampleSize"`
	ChiefInvestigatorFirstName      string                     `json:"ChiefInvestigatorFirstName"`
	ChiefInvestigatorLastName       string                     `json:"ChiefInvestigatorLastName"`
	ManagingSpecialty               string                     `json:"ManagingSpecialty"`
	QualificationDate               string                     `json:"QualificationDate"`
	PlannedOpeningDate              string                     `json:"PlannedOpeningDate"`
	PlannedClosureToRecruitmentDate string                     `json:"PlannedClosureToRecruitmentDate"`
	ActualOpeningDate               string                     `json:"ActualOpeningDate"`
	ActualClosureToRecruitmentDate  string                     `json:"ActualClosureToRecruitmentDate"`
	StudySponsors                   []SponsorRecord            `json:"StudySponsors"`
	StudyFunders                    []FunderRecord             `json:"StudyFunders"`
	StudyEvaluationCategories       []EvaluationCategoryRecord `json:"StudyEvaluationCategories"`
}

// Qualified reports whether the record carries a qualification date. Only
// qualified records are persisted.
func (r StudyRecord) Qualified() bool {
	return strings.TrimSpace(r.QualificationDate) != ""
}

// SponsorRecord is one entry of a study's sponsor list.
type SponsorRecord struct {
	OrganisationName              string `json:"OrganisationName"`
	OrganisationRTSIdentifier     string `json:"OrganisationRTSIdentifier"`
	OrganisationRole              string `json:"OrganisationRole"`
	OrganisationRoleRTSIdentifier string `json:"OrganisationRoleRTSIdentifier"`
}

// FunderRecord is one entry of a study's funder list.
type FunderRecord struct {
	FunderName                    string `json:"FunderName"`
	OrganisationRTSIdentifier     string `json:"OrganisationRTSIdentifier"`
	OrganisationRole              string `json:"OrganisationRole"`
	OrganisationRoleRTSIdentifier string `json:"OrganisationRoleRTSIdentifier"`
	GrantCode                     string `json:"GrantCode"`
	FundingStreamName             string `json:"FundingStreamName"`
}

// EvaluationCategoryRecord is one risk/milestone indicator entry for a study.
type EvaluationCategoryRecord struct {
	EvaluationCategoryType      string `json:"EvaluationCategoryType"`
	EvaluationCategoryValue     string `json:"EvaluationCategoryValue"`
	SampleSize                  *int   `json:"SampleSize"`
	TotalRecruitmentToDate      *int   `json:"TotalRecruitmentToDate"`
	PlannedRecruitmentStartDate string `json:"PlannedRecruitmentStartDate"`
	PlannedRecruitmentEndDate   string `json:"PlannedRecruitmentEndDate"`
	ActualOpeningDate           string `json:"ActualOpeningDate"`
	ActualClosureDate           string `json:"ActualClosureDate"`
	ExpectedReopenDate          string `json:"ExpectedReopenDate"`
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// parseRegistryDate converts a registry date string to a time value. Absent or
// unparseable dates come back nil so they persist as NULL, not as a sentinel.
func parseRegistryDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
