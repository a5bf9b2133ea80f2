// Package practice is the HTTP client for the third-party practice-management
// API: patient lookup, provider data and the upstream appointment book. All
// endpoints are POST JSON under a versioned base path, Basic-Auth protected,
// with a { status, msg, result } response envelope.
package practice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// APIError is a non-2xx response or an envelope reporting failure.
type APIError struct {
	StatusCode int
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("practice api error (http %d): %s", e.StatusCode, e.Msg)
}

// NotFound reports whether the error is an absence-of-data response that
// some callers treat as a valid empty state.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound ||
		strings.Contains(strings.ToLower(e.Msg), "not found")
}

type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      zerolog.Logger
}

func NewClient(baseURL, username, password string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

// envelope is the uniform response shape. status is a bool in most
// endpoints and the string "ok" in a few older ones.
type envelope struct {
	Status json.RawMessage `json:"status"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

func (e *envelope) ok() bool {
	var b bool
	if err := json.Unmarshal(e.Status, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(e.Status, &s); err == nil {
		return strings.EqualFold(s, "ok")
	}
	return false
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("practice request %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Msg: "unexpected response shape"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.ok() {
		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Str("msg", env.Msg).Msg("practice api rejected request")
		return &APIError{StatusCode: resp.StatusCode, Msg: env.Msg}
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", path, err)
		}
	}
	return nil
}

type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type Provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Specialty string `json:"specialty"`
}

type Appointment struct {
	ID              string `json:"id"`
	CustomerID      string `json:"customer_id"`
	ProviderID      string `json:"provider_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Kind            string `json:"kind"`
	Note            string `json:"note"`
}

// CustomerByEmail looks a patient up in the practice system.
func (c *Client) CustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	var cust Customer
	err := c.post(ctx, "/customers/search", map[string]string{"email": email}, &cust)
	if err != nil {
		return nil, err
	}
	return &cust, nil
}

// Providers lists all providers of the practice.
func (c *Client) Providers(ctx context.Context) ([]Provider, error) {
	var providers []Provider
	if err := c.post(ctx, "/providers/list", struct{}{}, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// ProviderByID fetches one provider.
func (c *Client) ProviderByID(ctx context.Context, id string) (*Provider, error) {
	var p Provider
	if err := c.post(ctx, "/providers/detail", map[string]string{"id": id}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// TreaterByEmail resolves the provider assigned to a patient. A patient with
// no assigned provider is a valid empty state, not an error: the not-found
// response is swallowed and (nil, nil) returned.
func (c *Client) TreaterByEmail(ctx context.Context, email string) (*Provider, error) {
	var p Provider
	err := c.post(ctx, "/treaters/lookup", map[string]string{"email": email}, &p)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Appointments lists upstream appointments in an inclusive date range.
func (c *Client) Appointments(ctx context.Context, fromDate, toDate string) ([]Appointment, error) {
	var appts []Appointment
	err := c.post(ctx, "/appointments/list", map[string]string{
		"from": fromDate,
		"to":   toDate,
	}, &appts)
	if err != nil {
		return nil, err
	}
	return appts, nil
}

// CreateAppointment writes an appointment into the practice system and
// returns its reference id.
func (c *Client) CreateAppointment(ctx context.Context, appt Appointment) (string, error) {
	var created Appointment
	if err := c.post(ctx, "/appointments/create", appt, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// ModifyAppointment updates an existing upstream appointment.
func (c *Client) ModifyAppointment(ctx context.Context, appt Appointment) error {
	return c.post(ctx, "/appointments/modify", appt, nil)
}
