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

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrRegistrySyncAlreadyRunning = errors.New("registry sync already running")

// RegistrySyncInput controls a single sync run.
type RegistrySyncInput struct {
	TriggerSource string
	LockName      string
	ReportEmail   string
}

// RegistrySyncSummary aggregates the page results of one run. ErrorMessage is
// set when the run stopped early; pages processed before the failure point
// stay persisted.
type RegistrySyncSummary struct {
	RunUUID      string `json:"run_uuid"`
	PagesFetched int    `json:"pages_fetched"`
	TotalRecords int    `json:"total_records"`
	StudySyncPageResult
	ErrorMessage string `json:"error_message,omitempty"`
}

func (s *RegistrySyncSummary) accumulate(res *StudySyncPageResult) {
	if res == nil {
		return
	}
	s.RecordsFetched += res.RecordsFetched
	s.RecordsQualified += res.RecordsQualified
	s.StudiesCreated += res.StudiesCreated
	s.StudiesUpdated += res.StudiesUpdated
	s.OrganisationsCreated += res.OrganisationsCreated
	s.OrganisationsUpdated += res.OrganisationsUpdated
	s.RolesCreated += res.RolesCreated
	s.RolesUpdated += res.RolesUpdated
	s.OrganisationRolesLinked += res.OrganisationRolesLinked
	s.StudyOrganisationsLinked += res.StudyOrganisationsLinked
	s.StudyFundersLinked += res.StudyFundersLinked
	s.EvaluationCategoriesAdded += res.EvaluationCategoriesAdded
	s.StudiesFlaggedDue += res.StudiesFlaggedDue
}

// RegistrySyncJobService coordinates one run of the registry sync: advisory
// lock, run bookkeeping, page loop and operator report.
type RegistrySyncJobService struct {
	db       *gorm.DB
	sync     *StudySyncService
	registry *RegistryClient
}

// NewRegistrySyncJobService constructs a RegistrySyncJobService.
func NewRegistrySyncJobService(db *gorm.DB, registry *RegistryClient) *RegistrySyncJobService {
	if db == nil {
		db = config.DB
	}
	return &RegistrySyncJobService{
		db:       db,
		sync:     NewStudySyncService(db),
		registry: registry,
	}
}

// Run executes one page-at-a-time, run-to-completion sync. A fetch or page
// failure stops further fetching, keeps earlier pages' work and finishes the
// run as failed with the error recorded; it is reported through the summary,
// not returned. The returned error covers startup conditions only (lock held,
// run row creation).
func (s *RegistrySyncJobService) Run(ctx context.Context, input *RegistrySyncInput) (*RegistrySyncSummary, error) {
	if input == nil {
		input = &RegistrySyncInput{}
	}
	if s.registry == nil {
		return nil, errors.New("registry client is not configured")
	}

	lockName := strings.TrimSpace(input.LockName)
	if lockName == "" {
		lockName = "registry_sync_job"
	}
	triggerSource := strings.TrimSpace(input.TriggerSource)
	if triggerSource == "" {
		triggerSource = "manual"
	}

	release, err := s.acquireLock(ctx, lockName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := release(); relErr != nil {
			log.Printf("registry sync: failed to release lock %s: %v", lockName, relErr)
		}
	}()

	run := &models.RegistrySyncRun{
		RunUUID:       uuid.NewString(),
		TriggerSource: triggerSource,
		Status:        "running",
		StartedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}

	summary := &RegistrySyncSummary{RunUUID: run.RunUUID, TotalRecords: -1}
	var runErr error

	defer func() {
		status := "success"
		var errMsg *string
		if runErr != nil {
			status = "failed"
			msg := runErr.Error()
			errMsg = &msg
		}

		updates := map[string]interface{}{
			"status":      status,
			"finished_at": time.Now(),
			"total_records": func() *int {
				if summary.TotalRecords >= 0 {
					return &summary.TotalRecords
				}
				return nil
			}(),
			"pages_fetched":          summary.PagesFetched,
			"studies_upserted":       summary.StudiesCreated + summary.StudiesUpdated,
			"organisations_upserted": summary.OrganisationsCreated + summary.OrganisationsUpdated,
			"studies_flagged_due":    summary.StudiesFlaggedDue,
			"error_message":          errMsg,
		}

		if err := s.db.WithContext(persistentContext(ctx)).Model(run).Updates(updates).Error; err != nil {
			log.Printf("registry sync: failed to update run %d: %v", run.ID, err)
		}
	}()

	pager := s.registry.Pages(run.ID)
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			log.Printf("registry sync: fetch failed after %d pages: %v", summary.PagesFetched, err)
			runErr = err
			break
		}
		if page == nil {
			break
		}

		summary.PagesFetched++
		summary.TotalRecords = page.TotalRecords

		res, err := s.sync.ProcessPage(ctx, page)
		summary.accumulate(res)
		if err != nil {
			log.Printf("registry sync: page %d failed: %v", page.Number, err)
			runErr = err
			break
		}
	}

	if runErr != nil {
		summary.ErrorMessage = runErr.Error()
	}

	s.sendRunReport(input.ReportEmail, summary)

	return summary, nil
}

func (s *RegistrySyncJobService) acquireLock(ctx context.Context, lockName string) (func() error, error) {
	lockCtx := persistentContext(ctx)

	var ok int
	if err := s.db.WithContext(lockCtx).Raw("SELECT GET_LOCK(?, 0)", lockName).Scan(&ok).Error; err != nil {
		return nil, err
	}
	if ok != 1 {
		return nil, ErrRegistrySyncAlreadyRunning
	}

	release := func() error {
		var released int
		return s.db.WithContext(lockCtx).Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
	}
	return release, nil
}

func (s *RegistrySyncJobService) sendRunReport(to string, summary *RegistrySyncSummary) {
	to = strings.TrimSpace(to)
	if to == "" {
		return
	}

	status := "succeeded"
	if summary.ErrorMessage != "" {
		status = "failed: " + summary.ErrorMessage
	}

	subject := fmt.Sprintf("Registry sync %s %s", summary.RunUUID, status)
	html := fmt.Sprintf(
		`<p>Registry sync run <strong>%s</strong> %s.</p>
<ul>
<li>Pages fetched: %d (total records: %d)</li>
<li>Studies: %d created, %d updated</li>
<li>Organisations: %d created, %d updated</li>
<li>Relationship rows added: %d org-role, %d study-org, %d study-funder</li>
<li>Evaluation categories added: %d</li>
<li>Studies flagged due assessment: %d</li>
</ul>`,
		summary.RunUUID, status,
		summary.PagesFetched, summary.TotalRecords,
		summary.StudiesCreated, summary.StudiesUpdated,
		summary.OrganisationsCreated, summary.OrganisationsUpdated,
		summary.OrganisationRolesLinked, summary.StudyOrganisationsLinked, summary.StudyFundersLinked,
		summary.EvaluationCategoriesAdded,
		summary.StudiesFlaggedDue,
	)

	if err := config.SendMail([]string{to}, subject, html); err != nil {
		log.Printf("registry sync: failed to send run report to %s: %v", to, err)
	}
}
