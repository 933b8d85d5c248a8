package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"
)

func TestFilterQualified(t *testing.T) {
	records := []StudyRecord{
		{ID: 1, QualificationDate: "2022-01-01T00:00:00"},
		{ID: 2},
		{ID: 3, QualificationDate: "  "},
		{ID: 4, QualificationDate: "2023-06-01"},
	}

	qualified := filterQualified(records)
	if len(qualified) != 2 {
		t.Fatalf("expected 2 qualified records, got %d", len(qualified))
	}
	if qualified[0].ID != 1 || qualified[1].ID != 4 {
		t.Fatalf("unexpected qualified records: %+v", qualified)
	}
}

func TestParseRegistryDate(t *testing.T) {
	if got := parseRegistryDate(""); got != nil {
		t.Fatalf("empty string should parse to nil, got %v", got)
	}
	if got := parseRegistryDate("not a date"); got != nil {
		t.Fatalf("garbage should parse to nil, got %v", got)
	}

	got := parseRegistryDate("2022-03-04T00:00:00")
	if got == nil {
		t.Fatal("expected a parsed date")
	}
	if got.Year() != 2022 || got.Month() != time.March || got.Day() != 4 {
		t.Fatalf("unexpected date: %v", got)
	}

	if got := parseRegistryDate("2022-03-04"); got == nil {
		t.Fatal("date-only layout should parse")
	}
}

func TestBuildStudyDefaultsAndForcedFlags(t *testing.T) {
	study := buildStudy(StudyRecord{
		ID:                12345,
		Title:             "A study of things",
		StudyStatus:       "Open to Recruitment",
		QualificationDate: "2022-01-01T00:00:00",
	})

	if study.CpmsID != 12345 {
		t.Fatalf("unexpected cpms id: %d", study.CpmsID)
	}
	if study.ManagingSpeciality != "" {
		t.Fatalf("absent managing specialty should default to empty string, got %q", study.ManagingSpeciality)
	}
	if study.IsDueAssessment || study.IsDeleted {
		t.Fatalf("flags must start false, got due=%v deleted=%v", study.IsDueAssessment, study.IsDeleted)
	}
	if study.ShortTitle != nil || study.IrasID != nil {
		t.Fatal("absent strings should persist as nil")
	}
	if study.ActualOpeningDate != nil {
		t.Fatal("absent dates should persist as nil, not a sentinel")
	}
	if study.QualificationDate == nil {
		t.Fatal("present dates should be parsed")
	}
}

func TestReconcileOrganisationsDedupAcrossSponsorAndFunder(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT .* FROM `organisations`"),
			args:    []driver.Value{"org-rts-1"},
			columns: []string{"id", "rts_identifier", "name"},
			rows:    [][]driver.Value{},
		},
		{
			kind:      kindExec,
			pattern:   regexp.MustCompile("INSERT INTO `organisations`"),
			argPrefix: []driver.Value{"org-rts-1", "Test University"},
			result:    scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT .* FROM `organisation_roles`"),
			args:    []driver.Value{"role-rts-a"},
			columns: []string{"id", "rts_identifier", "name"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `organisation_roles`"),
			// Trailing whitespace from the payload must be trimmed before storage.
			argPrefix: []driver.Value{"role-rts-a", "Clinical Research Sponsor"},
			result:    scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT .* FROM `organisation_roles`"),
			args:    []driver.Value{"role-rts-b"},
			columns: []string{"id", "rts_identifier", "name"},
			rows:    [][]driver.Value{},
		},
		{
			kind:      kindExec,
			pattern:   regexp.MustCompile("INSERT INTO `organisation_roles`"),
			argPrefix: []driver.Value{"role-rts-b", "Funder"},
			result:    scriptedResult{lastInsertID: 2, rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `organisation_role_links`"),
			args:    []driver.Value{int64(1), int64(1), int64(1), int64(2)},
			result:  scriptedResult{rowsAffected: 2},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &StudySyncService{db: db, now: time.Now}
	lookups := newPageLookups()
	res := &StudySyncPageResult{}

	records := []StudyRecord{
		{
			ID: 101,
			StudySponsors: []SponsorRecord{{
				OrganisationName:              "Test University",
				OrganisationRTSIdentifier:     "org-rts-1",
				OrganisationRole:              "Clinical Research Sponsor ",
				OrganisationRoleRTSIdentifier: "role-rts-a",
			}},
		},
		{
			ID: 102,
			StudyFunders: []FunderRecord{{
				FunderName:                    "Test University",
				OrganisationRTSIdentifier:     "org-rts-1",
				OrganisationRole:              "Funder",
				OrganisationRoleRTSIdentifier: "role-rts-b",
			}},
		},
	}

	if err := svc.reconcileOrganisations(context.Background(), records, lookups, res); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if res.OrganisationsCreated != 1 || res.OrganisationsUpdated != 0 {
		t.Fatalf("expected exactly one organisation upsert, got %+v", res)
	}
	if res.RolesCreated != 2 {
		t.Fatalf("expected two role upserts, got %d", res.RolesCreated)
	}
	if res.OrganisationRolesLinked != 2 {
		t.Fatalf("expected two organisation-role links, got %d", res.OrganisationRolesLinked)
	}
	if lookups.orgIDByName["Test University"] != 1 {
		t.Fatalf("unexpected organisation lookup: %+v", lookups.orgIDByName)
	}
	if _, ok := lookups.roleIDByName["Clinical Research Sponsor"]; !ok {
		t.Fatalf("role lookup should be keyed by the trimmed name: %+v", lookups.roleIDByName)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleNameWhitespaceDedupsToOneRole(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT .* FROM `organisations`"),
			args:    []driver.Value{"org-rts-1"},
			columns: []string{"id", "rts_identifier", "name"},
			rows:    [][]driver.Value{{int64(9), "org-rts-1", "Old Name"}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE `organisations`"),
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT .* FROM `organisation_roles`"),
			args:    []driver.Value{"role-rts-a"},
			columns: []string{"id", "rts_identifier", "name"},
			rows:    [][]driver.Value{},
		},
		{
			kind:      kindExec,
			pattern:   regexp.MustCompile("INSERT INTO `organisation_roles`"),
			argPrefix: []driver.Value{"role-rts-a", "Clinical Research Sponsor"},
			result:    scriptedResult{lastInsertID: 3, rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `organisation_role_links`"),
			args:    []driver.Value{int64(9), int64(3)},
			result:  scriptedResult{rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &StudySyncService{db: db, now: time.Now}
	lookups := newPageLookups()
	res := &StudySyncPageResult{}

	records := []StudyRecord{
		{
			ID: 101,
			StudySponsors: []SponsorRecord{{
				OrganisationName:              "Test University",
				OrganisationRTSIdentifier:     "org-rts-1",
				OrganisationRole:              "Clinical Research Sponsor ",
				OrganisationRoleRTSIdentifier: "role-rts-a",
			}},
		},
		{
			ID: 102,
			StudySponsors: []SponsorRecord{{
				OrganisationName:              "Test University",
				OrganisationRTSIdentifier:     "org-rts-1",
				OrganisationRole:              "Clinical Research Sponsor",
				OrganisationRoleRTSIdentifier: "role-rts-a",
			}},
		},
	}

	if err := svc.reconcileOrganisations(context.Background(), records, lookups, res); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if res.RolesCreated != 1 {
		t.Fatalf("records differing only in role whitespace should dedup to one role, got %d", res.RolesCreated)
	}
	if res.OrganisationsUpdated != 1 {
		t.Fatalf("existing organisation should be updated, got %+v", res)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertStudiesCreatesAndUpdates(t *testing.T) {
	createdAt := time.Date(2021, time.May, 1, 0, 0, 0, 0, time.UTC)

	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT .* FROM `studies`"),
			args:    []driver.Value{int64(101)},
			columns: []string{"id", "cpms_id"},
			rows:    [][]driver.Value{},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `studies`"),
			result:  scriptedResult{lastInsertID: 11, rowsAffected: 1},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT .* FROM `studies`"),
			args:    []driver.Value{int64(102)},
			columns: []string{"id", "cpms_id", "created_at", "is_due_assessment"},
			rows:    [][]driver.Value{{int64(22), int64(102), createdAt, true}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("(?s)UPDATE `studies` SET .*`is_due_assessment`.*`is_deleted`"),
			result:  scriptedResult{rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &StudySyncService{db: db, now: time.Now}
	lookups := newPageLookups()
	res := &StudySyncPageResult{}

	records := []StudyRecord{
		{ID: 101, Title: "New study", QualificationDate: "2022-01-01"},
		{ID: 102, Title: "Existing study", QualificationDate: "2022-01-01"},
	}

	if err := svc.upsertStudies(context.Background(), records, lookups, res); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if res.StudiesCreated != 1 || res.StudiesUpdated != 1 {
		t.Fatalf("expected 1 created and 1 updated, got %+v", res)
	}
	if lookups.studyIDByCpms[101] != 11 || lookups.studyIDByCpms[102] != 22 {
		t.Fatalf("unexpected study lookups: %+v", lookups.studyIDByCpms)
	}
	if len(lookups.studyIDs) != 2 {
		t.Fatalf("expected 2 page study ids, got %d", len(lookups.studyIDs))
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLinkRelationshipsFansOutRows(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `study_organisations`"),
			args:    []driver.Value{int64(11), int64(1), int64(2)},
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `study_funders`"),
			args:    []driver.Value{int64(11), int64(1), "G-1", ""},
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `study_evaluation_categories`"),
			result:  scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &StudySyncService{db: db, now: time.Now}
	lookups := newPageLookups()
	lookups.orgIDByName["Test University"] = 1
	lookups.roleIDByName["Clinical Research Sponsor"] = 2
	lookups.studyIDByCpms[101] = 11
	lookups.studyIDs = []uint{11}
	res := &StudySyncPageResult{}

	records := []StudyRecord{{
		ID: 101,
		StudySponsors: []SponsorRecord{{
			OrganisationName: "Test University",
			OrganisationRole: "Clinical Research Sponsor ",
		}},
		StudyFunders: []FunderRecord{{
			FunderName: "Test University",
			GrantCode:  "G-1",
		}},
		StudyEvaluationCategories: []EvaluationCategoryRecord{{
			EvaluationCategoryType:  "Interventional",
			EvaluationCategoryValue: "Milestone missed",
		}},
	}}

	if err := svc.linkRelationships(context.Background(), records, lookups, res); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	if res.StudyOrganisationsLinked != 1 || res.StudyFundersLinked != 1 || res.EvaluationCategoriesAdded != 1 {
		t.Fatalf("unexpected link counts: %+v", res)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLinkRelationshipsFailsLoudlyOnLookupMiss(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	svc := &StudySyncService{db: db, now: time.Now}
	lookups := newPageLookups()
	lookups.studyIDByCpms[101] = 11
	res := &StudySyncPageResult{}

	records := []StudyRecord{{
		ID:            101,
		StudySponsors: []SponsorRecord{{OrganisationName: "Unknown Org", OrganisationRole: "Sponsor"}},
	}}

	err := svc.linkRelationships(context.Background(), records, lookups, res)
	if !errors.Is(err, ErrLookupMiss) {
		t.Fatalf("expected ErrLookupMiss, got %v", err)
	}

	// No relationship rows may be written after a miss.
	if err := state.verifyComplete(); err != nil {
		t.Fatalf("unexpected writes: %v", err)
	}
}

func TestFlagDueAssessmentsScopesAndCounts(t *testing.T) {
	now := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, -3, 0)

	steps := []*queryStep{
		{
			kind: kindExec,
			pattern: regexp.MustCompile("(?s)UPDATE `studies` SET .*`is_due_assessment`.*" +
				"WHERE id IN .*" +
				"actual_opening_date IS NOT NULL AND actual_opening_date <= .*" +
				"EXISTS \\(SELECT 1 FROM study_evaluation_categories.*" +
				"NOT EXISTS \\(SELECT 1 FROM assessments"),
			argPrefix: []driver.Value{true},
			argSuffix: []driver.Value{cutoff, cutoff},
			result:    scriptedResult{rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &StudySyncService{db: db, now: func() time.Time { return now }}
	lookups := newPageLookups()
	lookups.studyIDs = []uint{11, 22}
	res := &StudySyncPageResult{}

	if err := svc.flagDueAssessments(context.Background(), lookups, res); err != nil {
		t.Fatalf("flag failed: %v", err)
	}

	if res.StudiesFlaggedDue != 1 {
		t.Fatalf("expected 1 study flagged, got %d", res.StudiesFlaggedDue)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessPageSkipsUnqualifiedRecordsEntirely(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	svc := &StudySyncService{db: db, now: time.Now}

	res, err := svc.ProcessPage(context.Background(), &StudyPage{
		Number:       1,
		TotalRecords: 2,
		Studies: []StudyRecord{
			{ID: 1},
			{ID: 2, QualificationDate: ""},
		},
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	if res.RecordsFetched != 2 || res.RecordsQualified != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}

	// Unqualified records must not reach the store at all.
	if err := state.verifyComplete(); err != nil {
		t.Fatalf("unexpected writes: %v", err)
	}
}
