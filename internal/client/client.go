// Package client calls the parish HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parish/internal/models"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "parish:client:"

// Client is a small HTTP client for the parish API. GET responses can be
// cached in Redis.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Availability is the answer for one resource and window.
type Availability struct {
	ResourceID int64            `json:"resource_id"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Available  bool             `json:"available"`
	Conflicts  []models.Booking `json:"conflicts"`
}

type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func New(baseURL, apiKey, apiExtra string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) CheckAvailability(ctx context.Context, resourceID int64, start, end time.Time) (*Availability, error) {
	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/api/v1/resources/%d/availability?%s", c.baseURL, resourceID, q.Encode())

	// availability changes with every booking, so it is never cached
	var resp Availability
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FreeSlots(ctx context.Context, resourceID int64, day time.Time, duration time.Duration) ([]Slot, error) {
	q := url.Values{}
	q.Set("date", day.Format(models.DateLayout))
	q.Set("duration", strconv.Itoa(int(duration/time.Minute)))
	endpoint := fmt.Sprintf("%s/api/v1/resources/%d/slots?%s", c.baseURL, resourceID, q.Encode())

	var wrap struct {
		Slots []Slot `json:"slots"`
	}
	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	return wrap.Slots, nil
}

func (c *Client) ListResources(ctx context.Context) ([]models.Resource, error) {
	var wrap struct {
		Resources []models.Resource `json:"resources"`
	}
	if err := c.cachedGet(ctx, "resources", c.baseURL+"/api/v1/resources", &wrap); err != nil {
		return nil, err
	}
	return wrap.Resources, nil
}

// Statistics returns the programme statistics. refresh bypasses both the
// client cache and the server cache.
func (c *Client) Statistics(ctx context.Context, refresh bool) (*models.Statistics, error) {
	var st models.Statistics
	if refresh {
		if err := c.doGet(ctx, c.baseURL+"/api/v1/statistics?refresh=true", &st); err != nil {
			return nil, err
		}
		c.writeCache(ctx, "statistics", st)
		return &st, nil
	}
	if err := c.cachedGet(ctx, "statistics", c.baseURL+"/api/v1/statistics", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// BookingRequest is the body of POST /api/v1/bookings.
type BookingRequest struct {
	ResourceID int64  `json:"resource_id"`
	MemberID   int64  `json:"member_id,omitempty"`
	MemberName string `json:"member_name,omitempty"`
	Purpose    string `json:"purpose,omitempty"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Notes      string `json:"notes,omitempty"`
}

func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	var b models.Booking
	if err := c.doPost(ctx, c.baseURL+"/api/v1/bookings", req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) cachedGet(ctx context.Context, key, endpoint string, out any) error {
	if c.readCache(ctx, key, out) {
		return nil
	}
	if err := c.doGet(ctx, endpoint, out); err != nil {
		return err
	}
	c.writeCache(ctx, key, out)
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, cachePrefix+key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &body)
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
