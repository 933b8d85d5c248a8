package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sponsor-engagement-api/config"
	"sponsor-engagement-api/models"

	"gorm.io/gorm"
)

const registryPageSize = 1000

// registryStudyStatuses is the fixed allow-list of study statuses requested
// from the registry: in-setup, open, closed-in-follow-up and suspended
// variants.
var registryStudyStatuses = []string{
	"In Setup",
	"In Setup, Approval Received",
	"In Setup, Pending Approval",
	"Open to Recruitment",
	"Open, With Recruitment",
	"Closed to Recruitment, In Follow Up",
	"Suspended (from Open to Recruitment)",
	"Suspended (from Open, With Recruitment)",
}

// registryRecordStatuses restricts results to live records.
var registryRecordStatuses = []string{
	"Live",
	"Live, Changes Pending",
}

// RegistryClient fetches study pages from the CPMS registry API.
type RegistryClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	db       *gorm.DB
}

// NewRegistryClient constructs a RegistryClient. The db handle is used only
// for per-request audit rows and may be nil.
func NewRegistryClient(cfg *config.RegistryConfig, client *http.Client, db *gorm.DB) *RegistryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RegistryClient{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		client:   client,
		db:       db,
	}
}

// StudyPage is one page of study records together with the registry's total.
type StudyPage struct {
	Number       int
	TotalRecords int
	Studies      []StudyRecord
}

// StudyPager walks the registry page by page. There is no checkpointing; a
// pager is only restartable by starting a new one.
type StudyPager struct {
	client       *RegistryClient
	runID        uint64
	pageNumber   int
	totalRecords int
	started      bool
}

// Pages returns a pager over the registry's study pages. The runID tags audit
// rows and may be zero.
func (c *RegistryClient) Pages(runID uint64) *StudyPager {
	return &StudyPager{client: c, runID: runID}
}

// Next fetches the next page, or returns (nil, nil) once the sequence is
// exhausted. The total record count is read from the first response and
// assumed stable for the rest of the run.
func (p *StudyPager) Next(ctx context.Context) (*StudyPage, error) {
	next := p.pageNumber + 1
	if p.started && next*registryPageSize >= p.totalRecords+registryPageSize {
		return nil, nil
	}

	page, err := p.client.fetchPage(ctx, next, p.runID)
	if err != nil {
		return nil, err
	}

	p.pageNumber = next
	if !p.started {
		p.totalRecords = page.TotalRecords
		p.started = true
	}
	return page, nil
}

type registryResponse struct {
	Result struct {
		TotalRecords int           `json:"TotalRecords"`
		Studies      []StudyRecord `json:"Studies"`
	} `json:"Result"`
}

func (c *RegistryClient) fetchPage(ctx context.Context, pageNumber int, runID uint64) (*StudyPage, error) {
	reqURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}

	query := reqURL.Query()
	query.Set("pageSize", strconv.Itoa(registryPageSize))
	query.Set("pageNumber", strconv.Itoa(pageNumber))
	for _, status := range registryStudyStatuses {
		query.Add("studyStatus", status)
	}
	for _, status := range registryRecordStatuses {
		query.Add("studyRecordStatus", status)
	}
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("username", c.username)
	req.Header.Set("password", c.password)

	started := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(started)

	var requestErr error
	var decoded registryResponse
	var itemsReturned int
	var statusCode int

	if resp != nil {
		statusCode = resp.StatusCode
	}

	if err == nil && resp != nil {
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			requestErr = fmt.Errorf("registry api error: status %d body %s", resp.StatusCode, string(body))
		} else if decodeErr := json.NewDecoder(resp.Body).Decode(&decoded); decodeErr != nil {
			requestErr = fmt.Errorf("decode registry response: %w", decodeErr)
		} else {
			itemsReturned = len(decoded.Result.Studies)
		}
	}

	c.recordAPIRequest(ctx, runID, req, statusCode, duration, pageNumber, itemsReturned)

	if err != nil {
		return nil, err
	}
	if requestErr != nil {
		return nil, requestErr
	}

	return &StudyPage{
		Number:       pageNumber,
		TotalRecords: decoded.Result.TotalRecords,
		Studies:      decoded.Result.Studies,
	}, nil
}

func (c *RegistryClient) recordAPIRequest(ctx context.Context, runID uint64, req *http.Request, statusCode int, duration time.Duration, pageNumber, itemsReturned int) {
	if c.db == nil || runID == 0 || req == nil {
		return
	}

	// Query params only; the credential headers must never be persisted.
	paramsJSON, _ := json.Marshal(req.URL.Query())
	responseMs := int(duration / time.Millisecond)
	pageSize := registryPageSize

	request := &models.RegistryAPIRequest{
		RunID:          runID,
		HTTPMethod:     req.Method,
		Endpoint:       req.URL.Path,
		QueryParams:    stringPtr(string(paramsJSON)),
		ResponseStatus: intPtr(statusCode),
		ResponseTimeMs: intPtr(responseMs),
		PageNumber:     intPtr(pageNumber),
		PageSize:       &pageSize,
		ItemsReturned:  intPtr(itemsReturned),
	}

	if err := c.db.WithContext(ctx).Create(request).Error; err != nil {
		log.Printf("failed to record registry api request for run %d: %v", runID, err)
	}
}

func stringPtr(value string) *string { return &value }

func intPtr(value int) *int { return &value }
