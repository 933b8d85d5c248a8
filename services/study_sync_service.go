package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"sponsor-engagement-api/config"
	"sponsor-engagement-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLookupMiss indicates an organisation, role or study id could not be
// resolved from the lookups built earlier in the same page. That only happens
// when the dedup key computation disagrees between phases, so it is treated as
// fatal for the page rather than silently dropping the relationship.
var ErrLookupMiss = errors.New("sync lookup miss")

// StudySyncService reconciles one registry page at a time into the store.
type StudySyncService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStudySyncService constructs a StudySyncService.
func NewStudySyncService(db *gorm.DB) *StudySyncService {
	if db == nil {
		db = config.DB
	}
	return &StudySyncService{db: db, now: time.Now}
}

// StudySyncPageResult captures row counts for a single processed page.
type StudySyncPageResult struct {
	RecordsFetched            int `json:"records_fetched"`
	RecordsQualified          int `json:"records_qualified"`
	StudiesCreated            int `json:"studies_created"`
	StudiesUpdated            int `json:"studies_updated"`
	OrganisationsCreated      int `json:"organisations_created"`
	OrganisationsUpdated      int `json:"organisations_updated"`
	RolesCreated              int `json:"roles_created"`
	RolesUpdated              int `json:"roles_updated"`
	OrganisationRolesLinked   int `json:"organisation_roles_linked"`
	StudyOrganisationsLinked  int `json:"study_organisations_linked"`
	StudyFundersLinked        int `json:"study_funders_linked"`
	EvaluationCategoriesAdded int `json:"evaluation_categories_added"`
	StudiesFlaggedDue         int `json:"studies_flagged_due"`
}

// pageLookups carries the external-key → persisted-id state threaded through
// one page's phases. It is rebuilt from scratch for every page.
type pageLookups struct {
	orgIDByName   map[string]uint
	roleIDByName  map[string]uint
	studyIDByCpms map[int]uint
	studyIDs      []uint
}

func newPageLookups() *pageLookups {
	return &pageLookups{
		orgIDByName:   make(map[string]uint),
		roleIDByName:  make(map[string]uint),
		studyIDByCpms: make(map[int]uint),
	}
}

// ProcessPage drives one fetched page through filter, organisation
// reconciliation, study upsert, relationship linking and due-assessment
// evaluation, in that order.
func (s *StudySyncService) ProcessPage(ctx context.Context, page *StudyPage) (*StudySyncPageResult, error) {
	if page == nil {
		return nil, errors.New("page is nil")
	}

	res := &StudySyncPageResult{RecordsFetched: len(page.Studies)}

	qualified := filterQualified(page.Studies)
	res.RecordsQualified = len(qualified)
	log.Printf("registry sync: page %d: %d records fetched, %d qualified", page.Number, res.RecordsFetched, res.RecordsQualified)

	if len(qualified) == 0 {
		return res, nil
	}

	lookups := newPageLookups()

	if err := s.reconcileOrganisations(ctx, qualified, lookups, res); err != nil {
		return res, err
	}
	if err := s.upsertStudies(ctx, qualified, lookups, res); err != nil {
		return res, err
	}
	if err := s.linkRelationships(ctx, qualified, lookups, res); err != nil {
		return res, err
	}
	if err := s.flagDueAssessments(ctx, lookups, res); err != nil {
		return res, err
	}

	log.Printf("registry sync: page %d: studies %d created / %d updated, %d flagged due",
		page.Number, res.StudiesCreated, res.StudiesUpdated, res.StudiesFlaggedDue)

	return res, nil
}

// filterQualified keeps only records carrying a qualification date.
func filterQualified(records []StudyRecord) []StudyRecord {
	qualified := make([]StudyRecord, 0, len(records))
	for _, record := range records {
		if record.Qualified() {
			qualified = append(qualified, record)
		}
	}
	return qualified
}

type organisationRef struct {
	name string
	rts  string
}

type organisationRolePair struct {
	orgName  string
	roleName string
}

// reconcileOrganisations collapses the sponsor and funder references of the
// page into distinct organisations and roles, upserts them and builds the
// name → id lookups used by the relationship linker.
func (s *StudySyncService) reconcileOrganisations(ctx context.Context, records []StudyRecord, lookups *pageLookups, res *StudySyncPageResult) error {
	var (
		orgNames  []string
		orgByName = make(map[string]organisationRef)

		roleNames  []string
		roleByName = make(map[string]organisationRef)

		pairs     []organisationRolePair
		pairsSeen = make(map[organisationRolePair]struct{})
	)

	collect := func(orgName, orgRTS, roleName, roleRTS string) {
		if orgName == "" {
			return
		}
		if _, ok := orgByName[orgName]; !ok {
			orgByName[orgName] = organisationRef{name: orgName, rts: orgRTS}
			orgNames = append(orgNames, orgName)
		}

		roleName = strings.TrimSpace(roleName)
		if roleName == "" {
			return
		}
		if _, ok := roleByName[roleName]; !ok {
			roleByName[roleName] = organisationRef{name: roleName, rts: roleRTS}
			roleNames = append(roleNames, roleName)
		}

		pair := organisationRolePair{orgName: orgName, roleName: roleName}
		if _, ok := pairsSeen[pair]; !ok {
			pairsSeen[pair] = struct{}{}
			pairs = append(pairs, pair)
		}
	}

	for _, record := range records {
		for _, sponsor := range record.StudySponsors {
			collect(sponsor.OrganisationName, sponsor.OrganisationRTSIdentifier, sponsor.OrganisationRole, sponsor.OrganisationRoleRTSIdentifier)
		}
		for _, funder := range record.StudyFunders {
			collect(funder.FunderName, funder.OrganisationRTSIdentifier, funder.OrganisationRole, funder.OrganisationRoleRTSIdentifier)
		}
	}

	tx := s.db.WithContext(ctx)

	for _, name := range orgNames {
		ref := orgByName[name]
		id, err := s.upsertOrganisation(tx, ref, res)
		if err != nil {
			return err
		}
		lookups.orgIDByName[name] = id
	}

	for _, name := range roleNames {
		ref := roleByName[name]
		id, err := s.upsertOrganisationRole(tx, ref, res)
		if err != nil {
			return err
		}
		lookups.roleIDByName[name] = id
	}

	log.Printf("registry sync: %d distinct organisations (%d created, %d updated), %d distinct roles (%d created, %d updated)",
		len(orgNames), res.OrganisationsCreated, res.OrganisationsUpdated,
		len(roleNames), res.RolesCreated, res.RolesUpdated)

	var links []models.OrganisationRoleLink
	for _, pair := range pairs {
		orgID, ok := lookups.orgIDByName[pair.orgName]
		if !ok {
			return fmt.Errorf("%w: organisation %q not found after upsert", ErrLookupMiss, pair.orgName)
		}
		roleID, ok := lookups.roleIDByName[pair.roleName]
		if !ok {
			return fmt.Errorf("%w: organisation role %q not found after upsert", ErrLookupMiss, pair.roleName)
		}
		links = append(links, models.OrganisationRoleLink{OrganisationID: orgID, RoleID: roleID})
	}

	if len(links) > 0 {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links)
		if result.Error != nil {
			return result.Error
		}
		res.OrganisationRolesLinked += int(result.RowsAffected)
	}
	log.Printf("registry sync: %d organisation-role links added", res.OrganisationRolesLinked)

	return nil
}

func (s *StudySyncService) upsertOrganisation(tx *gorm.DB, ref organisationRef, res *StudySyncPageResult) (uint, error) {
	var existing models.Organisation
	if err := tx.Where("rts_identifier = ?", ref.rts).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
		org := models.Organisation{RTSIdentifier: ref.rts, Name: ref.name}
		if err := tx.Create(&org).Error; err != nil {
			return 0, err
		}
		res.OrganisationsCreated++
		return org.ID, nil
	}

	existing.Name = ref.name
	if err := tx.Save(&existing).Error; err != nil {
		return 0, err
	}
	res.OrganisationsUpdated++
	return existing.ID, nil
}

// upsertOrganisationRole stores the role reference row. Role names arrive with
// stray surrounding whitespace ("Clinical Research Sponsor ") and are trimmed
// before storage; callers pass the trimmed name in ref.
func (s *StudySyncService) upsertOrganisationRole(tx *gorm.DB, ref organisationRef, res *StudySyncPageResult) (uint, error) {
	var existing models.OrganisationRole
	if err := tx.Where("rts_identifier = ?", ref.rts).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
		role := models.OrganisationRole{RTSIdentifier: ref.rts, Name: ref.name}
		if err := tx.Create(&role).Error; err != nil {
			return 0, err
		}
		res.RolesCreated++
		return role.ID, nil
	}

	existing.Name = ref.name
	if err := tx.Save(&existing).Error; err != nil {
		return 0, err
	}
	res.RolesUpdated++
	return existing.ID, nil
}

// upsertStudies writes each qualified record keyed by its CPMS id. Replaying
// the same page must produce identical persisted state, so the built row is
// fully deterministic and the due flag starts false on both paths; the
// evaluator recomputes it later in the same run.
func (s *StudySyncService) upsertStudies(ctx context.Context, records []StudyRecord, lookups *pageLookups, res *StudySyncPageResult) error {
	tx := s.db.WithContext(ctx)

	for _, record := range records {
		study := buildStudy(record)

		var existing models.Study
		if err := tx.Where("cpms_id = ?", study.CpmsID).First(&existing).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := tx.Create(study).Error; err != nil {
				return err
			}
			res.StudiesCreated++
			existing = *study
		} else {
			study.ID = existing.ID
			study.CreatedAt = existing.CreatedAt
			if err := tx.Save(study).Error; err != nil {
				return err
			}
			res.StudiesUpdated++
			existing = *study
		}

		lookups.studyIDByCpms[record.ID] = existing.ID
		lookups.studyIDs = append(lookups.studyIDs, existing.ID)
	}

	log.Printf("registry sync: %d studies upserted (%d created, %d updated)",
		res.StudiesCreated+res.StudiesUpdated, res.StudiesCreated, res.StudiesUpdated)

	return nil
}

func buildStudy(record StudyRecord) *models.Study {
	return &models.Study{
		CpmsID:                          record.ID,
		Title:                           strings.TrimSpace(record.Title),
		ShortTitle:                      optionalString(record.ShortTitle),
		StudyStatus:                     record.StudyStatus,
		RecordStatus:                    record.StudyRecordStatus,
		Route:                           record.StudyRoute,
		IrasID:                          optionalString(record.IrasID),
		ProtocolReferenceNumber:         optionalString(record.ProtocolReferenceNumber),
		SampleSize:                      record.SampleSize,
		ChiefInvestigatorFirstName:      optionalString(record.ChiefInvestigatorFirstName),
		ChiefInvestigatorLastName:       optionalString(record.ChiefInvestigatorLastName),
		ManagingSpeciality:              strings.TrimSpace(record.ManagingSpecialty),
		QualificationDate:               parseRegistryDate(record.QualificationDate),
		PlannedOpeningDate:              parseRegistryDate(record.PlannedOpeningDate),
		PlannedClosureToRecruitmentDate: parseRegistryDate(record.PlannedClosureToRecruitmentDate),
		ActualOpeningDate:               parseRegistryDate(record.ActualOpeningDate),
		ActualClosureToRecruitmentDate:  parseRegistryDate(record.ActualClosureToRecruitmentDate),
		IsDueAssessment:                 false,
		IsDeleted:                       false,
	}
}

// linkRelationships fans the page's sponsor, funder and evaluation-category
// entries out into relationship rows, resolving ids from the in-memory
// lookups only. Link rows are append-only: duplicates from earlier runs are
// skipped, never updated.
func (s *StudySyncService) linkRelationships(ctx context.Context, records []StudyRecord, lookups *pageLookups, res *StudySyncPageResult) error {
	var (
		studyOrgs  []models.StudyOrganisation
		funders    []models.StudyFunder
		categories []models.StudyEvaluationCategory
	)

	for _, record := range records {
		studyID, ok := lookups.studyIDByCpms[record.ID]
		if !ok {
			return fmt.Errorf("%w: study %d not found after upsert", ErrLookupMiss, record.ID)
		}

		for _, sponsor := range record.StudySponsors {
			orgID, ok := lookups.orgIDByName[sponsor.OrganisationName]
			if !ok {
				return fmt.Errorf("%w: organisation %q not found for study %d", ErrLookupMiss, sponsor.OrganisationName, record.ID)
			}
			roleID, ok := lookups.roleIDByName[strings.TrimSpace(sponsor.OrganisationRole)]
			if !ok {
				return fmt.Errorf("%w: role %q not found for study %d", ErrLookupMiss, sponsor.OrganisationRole, record.ID)
			}
			studyOrgs = append(studyOrgs, models.StudyOrganisation{
				StudyID:            studyID,
				OrganisationID:     orgID,
				OrganisationRoleID: roleID,
			})
		}

		for _, funder := range record.StudyFunders {
			orgID, ok := lookups.orgIDByName[funder.FunderName]
			if !ok {
				return fmt.Errorf("%w: funder %q not found for study %d", ErrLookupMiss, funder.FunderName, record.ID)
			}
			funders = append(funders, models.StudyFunder{
				StudyID:           studyID,
				OrganisationID:    orgID,
				GrantCode:         strings.TrimSpace(funder.GrantCode),
				FundingStreamName: strings.TrimSpace(funder.FundingStreamName),
			})
		}

		for _, category := range record.StudyEvaluationCategories {
			categories = append(categories, models.StudyEvaluationCategory{
				StudyID:                     studyID,
				IndicatorType:               category.EvaluationCategoryType,
				IndicatorValue:              category.EvaluationCategoryValue,
				SampleSize:                  category.SampleSize,
				TotalRecruitmentToDate:      category.TotalRecruitmentToDate,
				PlannedRecruitmentStartDate: parseRegistryDate(category.PlannedRecruitmentStartDate),
				PlannedRecruitmentEndDate:   parseRegistryDate(category.PlannedRecruitmentEndDate),
				ActualOpeningDate:           parseRegistryDate(category.ActualOpeningDate),
				ActualClosureDate:           parseRegistryDate(category.ActualClosureDate),
				ExpectedReopenDate:          parseRegistryDate(category.ExpectedReopenDate),
			})
		}
	}

	tx := s.db.WithContext(ctx)

	if len(studyOrgs) > 0 {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&studyOrgs)
		if result.Error != nil {
			return result.Error
		}
		res.StudyOrganisationsLinked += int(result.RowsAffected)
	}
	if len(funders) > 0 {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&funders)
		if result.Error != nil {
			return result.Error
		}
		res.StudyFundersLinked += int(result.RowsAffected)
	}
	if len(categories) > 0 {
		// Point-in-time rows, inserted every run without dedup.
		if err := tx.Create(&categories).Error; err != nil {
			return err
		}
		res.EvaluationCategoriesAdded += len(categories)
	}

	log.Printf("registry sync: %d study-organisation links, %d study-funder links, %d evaluation categories added",
		res.StudyOrganisationsLinked, res.StudyFundersLinked, res.EvaluationCategoriesAdded)

	return nil
}

// flagDueAssessments turns on is_due_assessment for this page's studies that
// opened at least three months ago, carry at least one evaluation category and
// have no assessment newer than three months. The upsert step already reset
// the flag to false, so the evaluator only ever turns it on within a run.
//
// Studies with no actual opening date are never flagged here, even though the
// assessment screens describe a due state for them; this mirrors the
// production query until that rule is settled.
func (s *StudySyncService) flagDueAssessments(ctx context.Context, lookups *pageLookups, res *StudySyncPageResult) error {
	if len(lookups.studyIDs) == 0 {
		return nil
	}

	cutoff := s.now().AddDate(0, -3, 0)

	result := s.db.WithContext(ctx).Model(&models.Study{}).
		Where("id IN ?", lookups.studyIDs).
		Where("actual_opening_date IS NOT NULL AND actual_opening_date <= ?", cutoff).
		Where("EXISTS (SELECT 1 FROM study_evaluation_categories sec WHERE sec.study_id = studies.id)").
		Where("NOT EXISTS (SELECT 1 FROM assessments a WHERE a.study_id = studies.id AND a.updated_at > ?)", cutoff).
		Update("is_due_assessment", true)
	if result.Error != nil {
		return result.Error
	}

	res.StudiesFlaggedDue = int(result.RowsAffected)
	log.Printf("registry sync: %d studies flagged due assessment", res.StudiesFlaggedDue)

	return nil
}
