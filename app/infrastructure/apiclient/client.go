package apiclient

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

	"go.uber.org/zap"

	"github.com/mark47B/erp-portal/app/domain/entity"
	"github.com/mark47B/erp-portal/app/domain/repository"
	"github.com/mark47B/erp-portal/app/infrastructure/metrics"
)

const maxErrorBody = 4 << 10

// Client talks to the ERP REST API with the bearer token from a TokenStore.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens repository.TokenStore
	log    *zap.Logger
}

func New(baseURL string, tokens repository.TokenStore, timeout time.Duration, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:   u,
		http:   &http.Client{Timeout: timeout},
		tokens: tokens,
		log:    log.Named("apiclient"),
	}, nil
}

func (c *Client) Users() repository.UserAPI                 { return users{c} }
func (c *Client) Teams() repository.TeamAPI                 { return teams{c} }
func (c *Client) Employees() repository.EmployeeAPI         { return employees{c} }
func (c *Client) Invitations() repository.InvitationAPI     { return invitations{c} }
func (c *Client) Subscriptions() repository.SubscriptionAPI { return subscriptions{c} }
func (c *Client) ProjectTasks() repository.ProjectTaskAPI   { return projectTasks{c} }
func (c *Client) Facturations() repository.FacturationAPI   { return facturations{c} }
func (c *Client) Onboarding() repository.OnboardingAPI      { return onboarding{c} }

type errorBody struct {
	Error string `json:"error"`
}

// do sends one request. body and out may be nil. Non-2xx answers become *entity.APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.base.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIClientDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("http %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.APIClientDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &entity.APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			apiErr.Message = eb.Error
		}
		c.log.Debug("api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}

// queryValues encodes a JSON-tagged filter struct; empty fields are skipped.
func queryValues(filters any) (url.Values, error) {
	raw, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	v := url.Values{}
	for k, f := range fields {
		switch t := f.(type) {
		case nil:
		case string:
			if t != "" {
				v.Set(k, t)
			}
		default:
			v.Set(k, fmt.Sprint(t))
		}
	}
	return v, nil
}

func seg(s string) string {
	return url.PathEscape(s)
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	err := c.do(ctx, http.MethodGet, path, query, nil, &out)
	return out, err
}

func list[T any](ctx context.Context, c *Client, path string, filters any) (entity.Page[T], error) {
	var q url.Values
	if filters != nil {
		var err error
		if q, err = queryValues(filters); err != nil {
			return entity.Page[T]{}, err
		}
	}
	return get[entity.Page[T]](ctx, c, path, q)
}

func send[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var out T
	if err := c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
