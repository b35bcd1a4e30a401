// Package backoffice — HTTP-клиент удалённого back-office API: справочники клиентов,
// поездок, пассажиров и продавцов, а также Sales service.
package backoffice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerReset    = 30 * time.Second
)

// responseBodyReadLimit ограничивает тело ответа, попадающее в StatusError.
const responseBodyReadLimit int64 = 1024

var errBaseURLRequired = errors.New("backoffice base url is required")

// StatusError — ответ API с кодом вне 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Client реализует domain.Backoffice поверх REST API.
// Чтения повторяются при временных ошибках, мутации выполняются ровно один раз.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retry      RetryConfig
	breaker    *CircuitBreaker
	logger     *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithToken задаёт bearer-токен.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTimeout задаёт таймаут одного HTTP-запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout, Transport: c.httpClient.Transport}
		}
	}
}

// WithRetryConfig задаёт политику повторов чтений.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithCircuitBreaker подменяет circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient создаёт клиента back-office API.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    trimmed,
		retry:      DefaultRetryConfig(),
		logger:     log.New().WithField("component", "backoffice-client"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.breaker == nil {
		client.breaker = NewCircuitBreaker(defaultBreakerFailures, defaultBreakerReset, client.logger)
	}
	client.breaker.isFailure = isServiceFailure

	return client, nil
}

// Breaker возвращает circuit breaker клиента (для health-проверок).
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// FindCustomerByCode возвращает клиента по коду.
func (c *Client) FindCustomerByCode(ctx context.Context, companyID, code string) (domain.Customer, error) {
	var customer domain.Customer
	err := c.get(ctx, "find_customer", companyPath(companyID, "customers", "by-code", code), nil, &customer, domain.ErrCustomerNotFound)
	return customer, err
}

// ListCustomers возвращает клиентов компании.
func (c *Client) ListCustomers(ctx context.Context, companyID string) ([]domain.Customer, error) {
	customers := []domain.Customer{}
	err := c.get(ctx, "list_customers", companyPath(companyID, "customers"), nil, &customers, nil)
	return customers, err
}

// FindTripByCode возвращает поездку по коду.
func (c *Client) FindTripByCode(ctx context.Context, companyID, code string) (domain.Trip, error) {
	var trip domain.Trip
	err := c.get(ctx, "find_trip", companyPath(companyID, "trips", "by-code", code), nil, &trip, domain.ErrTripNotFound)
	return trip, err
}

// GetTrip возвращает поездку с актуальной занятостью мест.
func (c *Client) GetTrip(ctx context.Context, companyID, tripID string) (domain.Trip, error) {
	var trip domain.Trip
	err := c.get(ctx, "get_trip", companyPath(companyID, "trips", tripID), nil, &trip, domain.ErrTripNotFound)
	return trip, err
}

// ListTrips возвращает поездки компании.
func (c *Client) ListTrips(ctx context.Context, companyID string) ([]domain.Trip, error) {
	trips := []domain.Trip{}
	err := c.get(ctx, "list_trips", companyPath(companyID, "trips"), nil, &trips, nil)
	return trips, err
}

// Search ищет пассажиров; страница передаётся как есть.
func (c *Client) Search(ctx context.Context, companyID string, field domain.TravelerSearchField, value string, page int) (domain.TravelerPage, error) {
	query := url.Values{}
	query.Set("field", string(field))
	query.Set("value", value)
	query.Set("page", strconv.Itoa(page))

	result := domain.TravelerPage{Items: []domain.Traveler{}}
	err := c.get(ctx, "search_travelers", companyPath(companyID, "travelers"), query, &result, nil)
	return result, err
}

// Get возвращает пассажира по идентификатору.
func (c *Client) Get(ctx context.Context, companyID, id string) (domain.Traveler, error) {
	var traveler domain.Traveler
	err := c.get(ctx, "get_traveler", companyPath(companyID, "travelers", id), nil, &traveler, domain.ErrTravelerNotFound)
	return traveler, err
}

// Create создаёт пассажира.
func (c *Client) Create(ctx context.Context, fields domain.TravelerFields) (domain.Traveler, error) {
	var traveler domain.Traveler
	err := c.mutate(ctx, "create_traveler", http.MethodPost, "/travelers", fields, &traveler, nil)
	return traveler, err
}

// Update обновляет поля пассажира.
func (c *Client) Update(ctx context.Context, id string, patch map[domain.TravelerField]string) (domain.Traveler, error) {
	var traveler domain.Traveler
	err := c.mutate(ctx, "update_traveler", http.MethodPatch, "/travelers/"+url.PathEscape(id), patch, &traveler, domain.ErrTravelerNotFound)
	return traveler, err
}

// ListSellers возвращает продавцов компании без указанной роли.
func (c *Client) ListSellers(ctx context.Context, companyID, excludeRole string) ([]domain.Seller, error) {
	var query url.Values
	if excludeRole != "" {
		query = url.Values{"exclude_role": []string{excludeRole}}
	}
	sellers := []domain.Seller{}
	err := c.get(ctx, "list_sellers", companyPath(companyID, "sellers"), query, &sellers, nil)
	return sellers, err
}

// CreateSale создаёт продажу.
func (c *Client) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	var sale domain.Sale
	err := c.mutate(ctx, "create_sale", http.MethodPost, "/sales", req, &sale, nil)
	return sale, err
}

// UpdateSale финализирует продажу с условиями оплаты.
func (c *Client) UpdateSale(ctx context.Context, saleID string, req domain.FinalizeSaleRequest) (domain.Sale, error) {
	var sale domain.Sale
	err := c.mutate(ctx, "update_sale", http.MethodPatch, "/sales/"+url.PathEscape(saleID), req, &sale, nil)
	return sale, err
}

// AttachTraveler прикрепляет пассажира к продаже. 409 означает занятое место.
func (c *Client) AttachTraveler(ctx context.Context, req domain.AttachTravelerRequest) (domain.SaleTraveler, error) {
	var st domain.SaleTraveler
	err := c.mutate(ctx, "attach_traveler", http.MethodPost, "/sales/"+url.PathEscape(req.SaleID)+"/travelers", req, &st, nil)
	return st, err
}

func (c *Client) get(ctx context.Context, operation, path string, query url.Values, out any, notFound error) error {
	err := c.executeWithRetry(ctx, operation, func() error {
		return c.breaker.Execute(operation, func() error {
			return c.do(ctx, http.MethodGet, path, query, nil, out)
		})
	})
	return mapError(operation, err, notFound)
}

func (c *Client) mutate(ctx context.Context, operation, method, path string, body, out any, notFound error) error {
	err := c.breaker.Execute(operation, func() error {
		return c.do(ctx, method, path, nil, body, out)
	})
	if err != nil {
		c.logger.WithError(err).WithField("operation", operation).Warn("backoffice mutation failed")
	}
	return mapError(operation, err, notFound)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// mapError переводит коды ответа в доменные ошибки.
func mapError(operation string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound && notFound != nil:
			return fmt.Errorf("%s: %w", operation, notFound)
		case se.StatusCode == http.StatusConflict && operation == "attach_traveler":
			return fmt.Errorf("%s: %w: %w", operation, domain.ErrSeatConflict, se)
		}
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func companyPath(companyID string, segments ...string) string {
	var b strings.Builder
	b.WriteString("/companies/")
	b.WriteString(url.PathEscape(companyID))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

var _ domain.Backoffice = (*Client)(nil)
