// Package adaptive implements the client of the external adaptive learning service.
// This package handles all communication with the service: students, links between
// students and knowledge nodes (course blocks), events, and pending reviews.
package adaptive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/julAtWork/edx-platform/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the adaptive learning client.
type ClientConfig struct {
	// Settings is the course-scoped configuration (url, api_version, instance_id, access_token).
	Settings *Configuration

	// Timeout is the HTTP request timeout. Zero keeps the transport default.
	Timeout time.Duration

	// RateLimit is the sustained outbound request rate per second. Zero disables throttling.
	RateLimit float64

	// RateLimitBurst is the number of requests allowed in a burst.
	RateLimitBurst int

	// CircuitBreaker guards outbound requests when set.
	CircuitBreaker *circuitbreaker.CircuitBreaker

	// HTTPClient overrides the HTTP client built from Timeout.
	HTTPClient *http.Client

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables request logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(settings *Configuration) ClientConfig {
	return ClientConfig{
		Settings:       settings,
		Timeout:        30 * time.Second,
		RateLimitBurst: 1,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// API
// ══════════════════════════════════════════════════════════════════════════════

// API is the set of operations hosts use to talk to the adaptive learning service.
// Client implements it; hosts keep a reference instead of embedding the client.
type API interface {
	GetStudents(ctx context.Context) ([]Student, error)
	GetStudent(ctx context.Context, uid string) (Student, error)
	CreateStudent(ctx context.Context, uid string) (Student, error)
	GetOrCreateStudent(ctx context.Context, uid string) (Student, error)

	GetKnowledgeNodeStudents(ctx context.Context) ([]KnowledgeNodeStudent, error)
	GetKnowledgeNodeStudent(ctx context.Context, blockID, uid string) (KnowledgeNodeStudent, error)
	CreateKnowledgeNodeStudent(ctx context.Context, blockID, uid string) (KnowledgeNodeStudent, error)
	CreateKnowledgeNodeStudents(ctx context.Context, blockIDs []string, uid string) ([]KnowledgeNodeStudent, error)
	GetOrCreateKnowledgeNodeStudent(ctx context.Context, blockID, uid string) (KnowledgeNodeStudent, error)
	GetKnowledgeNodeStudentID(ctx context.Context, blockID, uid string) (string, error)

	CreateEvent(ctx context.Context, blockID, uid, eventType string) (Event, error)
	CreateReadEvent(ctx context.Context, blockID, uid string) (Event, error)
	CreateResultEvent(ctx context.Context, blockID, uid, result string) (Event, error)

	GetPendingReviews(ctx context.Context, uid string) ([]PendingReview, error)
}

var _ API = (*Client)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the adaptive learning service client.
// It is safe for concurrent use; derived URLs are computed once and never change.
type Client struct {
	config     ClientConfig
	settings   *Configuration
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker

	urlsOnce sync.Once
	urls     URLs
	urlsErr  error
}

// NewClient creates a new adaptive learning client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Settings == nil {
		return nil, fmt.Errorf("%w: no settings", ErrInvalidSetting)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Client{
		config:     config,
		settings:   config.Settings,
		httpClient: httpClient,
		logger:     config.Logger.With("component", "adaptive"),
		limiter:    limiter,
		breaker:    config.CircuitBreaker,
	}, nil
}

// Settings returns the configuration the client was built from.
func (c *Client) Settings() *Configuration {
	return c.settings
}

// ══════════════════════════════════════════════════════════════════════════════
// URLS AND HEADERS
// ══════════════════════════════════════════════════════════════════════════════

// URLs holds the resource URLs derived from the configuration.
type URLs struct {
	Base                  string
	Instance              string
	Students              string
	Events                string
	KnowledgeNodeStudents string
	PendingReviews        string
}

// URLs returns the resource URLs, computing them on first use.
func (c *Client) URLs() (URLs, error) {
	c.urlsOnce.Do(func() {
		c.urls, c.urlsErr = buildURLs(c.settings)
	})
	return c.urls, c.urlsErr
}

func buildURLs(settings *Configuration) (URLs, error) {
	base, err := settings.URL()
	if err != nil {
		return URLs{}, err
	}
	version, err := settings.APIVersion()
	if err != nil {
		return URLs{}, err
	}
	instanceID, err := settings.InstanceID()
	if err != nil {
		return URLs{}, err
	}

	u := URLs{Base: base + "/" + version}
	u.Instance = u.Base + "/instances/" + instanceID
	u.Students = u.Instance + "/students"
	u.Events = u.Instance + "/events"
	u.KnowledgeNodeStudents = u.Instance + "/knowledge_node_students"
	u.PendingReviews = u.Instance + "/review_utils/fetch_reviews"
	return u, nil
}

// RequestHeaders returns the custom headers sent with every request.
// The value is derived from the configuration on each call.
func (c *Client) RequestHeaders() (map[string]string, error) {
	token, err := c.settings.AccessToken()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": "Token token=" + token,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetStudents returns all students the service knows about.
func (c *Client) GetStudents(ctx context.Context) ([]Student, error) {
	urls, err := c.URLs()
	if err != nil {
		return nil, err
	}

	var students []Student
	if err := c.doRequest(ctx, http.MethodGet, urls.Students, nil, &students); err != nil {
		return nil, fmt.Errorf("get students: %w", err)
	}
	return students, nil
}

// GetStudent returns the student identified by uid, or nil if the service does not know it.
func (c *Client) GetStudent(ctx context.Context, uid string) (Student, error) {
	students, err := c.GetStudents(ctx)
	if err != nil {
		return nil, err
	}
	return findFirst(students, func(s Record) bool {
		return s.Matches(FieldUID, uid)
	}), nil
}

// CreateStudent creates the student identified by uid and returns it.
func (c *Client) CreateStudent(ctx context.Context, uid string) (Student, error) {
	urls, err := c.URLs()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set(FieldUID, uid)

	var student Student
	if err := c.doRequest(ctx, http.MethodPost, urls.Students, form, &student); err != nil {
		return nil, fmt.Errorf("create student %s: %w", uid, err)
	}
	return student, nil
}

// GetOrCreateStudent returns the student identified by uid, creating it if needed.
func (c *Client) GetOrCreateStudent(ctx context.Context, uid string) (Student, error) {
	student, err := c.GetStudent(ctx, uid)
	if err != nil {
		return nil, err
	}
	if student != nil {
		return student, nil
	}
	return c.CreateStudent(ctx, uid)
}

// ══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE NODE STUDENT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetKnowledgeNodeStudents returns all links between students and knowledge nodes.
func (c *Client) GetKnowledgeNodeStudents(ctx context.Context) ([]KnowledgeNodeStudent, error) {
	urls, err := c.URLs()
	if err != nil {
		return nil, err
	}

	var links []KnowledgeNodeStudent
	if err := c.doRequest(ctx, http.MethodGet, urls.KnowledgeNodeStudents, nil, &links); err != nil {
		return nil, fmt.Errorf("get knowledge node students: %w", err)
	}
	return links, nil
}

// GetKnowledgeNodeStudent returns the link between uid and blockID, or nil if none exists.
func (c *Client) GetKnowledgeNodeStudent(ctx context.Context, blockID, uid string) (KnowledgeNodeStudent, error) {
	links, err := c.GetKnowledgeNodeStudents(ctx)
	if err != nil {
		return nil, err
	}
	return findLink(links, blockID, uid), nil
}

// CreateKnowledgeNodeStudent links uid to blockID and returns the new link.
func (c *Client) CreateKnowledgeNodeStudent(ctx context.Context, blockID, uid string) (KnowledgeNodeStudent, error) {
	urls, err := c.URLs()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set(FieldKnowledgeNodeUID, blockID)
	form.Set(FieldStudentUID, uid)

	var link KnowledgeNodeStudent
	if err := c.doRequest(ctx, http.MethodPost, urls.KnowledgeNodeStudents, form, &link); err != nil {
		return nil, fmt.Errorf("create knowledge node student %s/%s: %w", blockID, uid, err)
	}
	return link, nil
}

// GetOrCreateKnowledgeNodeStudent makes sure the student exists, then returns
// the link between uid and blockID, creating it if needed.
func (c *Client) GetOrCreateKnowledgeNodeStudent(ctx context.Context, blockID, uid string) (KnowledgeNodeStudent, error) {
	if _, err := c.GetOrCreateStudent(ctx, uid); err != nil {
		return nil, err
	}

	link, err := c.GetKnowledgeNodeStudent(ctx, blockID, uid)
	if err != nil {
		return nil, err
	}
	if link != nil {
		return link, nil
	}
	return c.CreateKnowledgeNodeStudent(ctx, blockID, uid)
}

// CreateKnowledgeNodeStudents links uid to every block in blockIDs that is not
// linked yet. The student is ensured once and existing links are fetched once.
// Links are returned in the order of blockIDs.
func (c *Client) CreateKnowledgeNodeStudents(ctx context.Context, blockIDs []string, uid string) ([]KnowledgeNodeStudent, error) {
	if len(blockIDs) == 0 {
		return nil, nil
	}
	if _, err := c.GetOrCreateStudent(ctx, uid); err != nil {
		return nil, err
	}

	existing, err := c.GetKnowledgeNodeStudents(ctx)
	if err != nil {
		return nil, err
	}

	links := make([]KnowledgeNodeStudent, 0, len(blockIDs))
	for _, blockID := range blockIDs {
		if link := findLink(existing, blockID, uid); link != nil {
			links = append(links, link)
			continue
		}
		link, err := c.CreateKnowledgeNodeStudent(ctx, blockID, uid)
		if err != nil {
			return nil, err
		}
		existing = append(existing, link)
		links = append(links, link)
	}
	return links, nil
}

// GetKnowledgeNodeStudentID returns the id of the link between uid and blockID,
// creating student and link as needed. It returns "" if the link has no id.
func (c *Client) GetKnowledgeNodeStudentID(ctx context.Context, blockID, uid string) (string, error) {
	link, err := c.GetOrCreateKnowledgeNodeStudent(ctx, blockID, uid)
	if err != nil {
		return "", err
	}
	return link.ID(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// CreateEvent records an event of eventType for uid on blockID.
func (c *Client) CreateEvent(ctx context.Context, blockID, uid, eventType string) (Event, error) {
	return c.createEvent(ctx, blockID, uid, eventType, nil)
}

// CreateReadEvent records that uid has read blockID.
func (c *Client) CreateReadEvent(ctx context.Context, blockID, uid string) (Event, error) {
	return c.CreateEvent(ctx, blockID, uid, EventRead)
}

// CreateResultEvent records the result of uid answering the problem blockID.
func (c *Client) CreateResultEvent(ctx context.Context, blockID, uid, result string) (Event, error) {
	extra := url.Values{}
	extra.Set(FieldPayload, result)
	return c.createEvent(ctx, blockID, uid, EventResult, extra)
}

func (c *Client) createEvent(ctx context.Context, blockID, uid, eventType string, extra url.Values) (Event, error) {
	urls, err := c.URLs()
	if err != nil {
		return nil, err
	}

	linkID, err := c.GetKnowledgeNodeStudentID(ctx, blockID, uid)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	if linkID != "" {
		form.Set(FieldKnowledgeNodeStudentID, linkID)
	}
	form.Set(FieldEventType, eventType)
	for key, values := range extra {
		form[key] = values
	}

	var event Event
	if err := c.doRequest(ctx, http.MethodPost, urls.Events, form, &event); err != nil {
		return nil, fmt.Errorf("create %s event %s/%s: %w", eventType, blockID, uid, err)
	}
	return event, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetPendingReviews returns the pending reviews of uid.
// The service expects student_uid as a form-encoded body on a GET request.
func (c *Client) GetPendingReviews(ctx context.Context, uid string) ([]PendingReview, error) {
	urls, err := c.URLs()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set(FieldStudentUID, uid)

	var reviews []PendingReview
	if err := c.doRequest(ctx, http.MethodGet, urls.PendingReviews, form, &reviews); err != nil {
		return nil, fmt.Errorf("get pending reviews %s: %w", uid, err)
	}
	return reviews, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs a single HTTP request. Nothing is retried.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, form url.Values, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	if c.breaker == nil {
		return c.doSingleRequest(ctx, method, rawURL, form, result)
	}
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doSingleRequest(ctx, method, rawURL, form, result)
	})
}

func (c *Client) doSingleRequest(ctx context.Context, method, rawURL string, form url.Values, result any) error {
	headers, err := c.RequestHeaders()
	if err != nil {
		return err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	requestID := uuid.NewString()
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if c.config.Debug {
		c.logger.Debug("adaptive api request",
			"request_id", requestID,
			"method", method,
			"url", rawURL,
			"status", resp.StatusCode,
			"latency", time.Since(start).String(),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	decoder := json.NewDecoder(bytes.NewReader(respBody))
	decoder.UseNumber()
	if err := decoder.Decode(result); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// findFirst returns the first record accepted by match, or nil.
func findFirst(records []Record, match func(Record) bool) Record {
	for _, r := range records {
		if match(r) {
			return r
		}
	}
	return nil
}

func findLink(links []KnowledgeNodeStudent, blockID, uid string) KnowledgeNodeStudent {
	return findFirst(links, func(l Record) bool {
		return l.Matches(FieldKnowledgeNodeUID, blockID) && l.Matches(FieldStudentUID, uid)
	})
}

// NewCircuitBreaker returns a breaker that only counts transport failures and
// server-side errors. Client errors (4xx) and malformed bodies do not trip it.
func NewCircuitBreaker(threshold int, timeout time.Duration, logger *slog.Logger) *circuitbreaker.CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return circuitbreaker.New(
		"adaptive-api",
		circuitbreaker.WithFailureThreshold(threshold),
		circuitbreaker.WithTimeout(timeout),
		circuitbreaker.WithIsFailure(isBreakerFailure),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		}),
	)
}

func isBreakerFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, ErrMalformedResponse)
}
