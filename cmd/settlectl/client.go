package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/auth"
)

const maxResponseBody = 1 << 20

// adminClient calls the back-office routes with HMAC-signed requests.
type adminClient struct {
	baseURL  string
	secret   []byte
	operator string
	http     *http.Client
	now      func() time.Time
	nonce    func() string
}

func newAdminClient(baseURL, secret, operator string, timeout time.Duration) (*adminClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if secret == "" {
		return nil, errors.New("hmac secret is required")
	}
	if strings.TrimSpace(operator) == "" {
		return nil, errors.New("operator id is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &adminClient{
		baseURL:  baseURL,
		secret:   []byte(secret),
		operator: strings.TrimSpace(operator),
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
		nonce:    func() string { return ulid.Make().String() },
	}, nil
}

// apiError mirrors the JSON error envelope written by the API.
type apiError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api returned %d %s: %s", e.Status, e.Code, e.Message)
}

// do sends a signed request to path below /api/v1/admin and returns the raw response body.
func (c *adminClient) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	target := c.baseURL + "/api/v1/admin" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := auth.SignRequest(req, c.secret, c.operator, c.nonce(), c.now()); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		return nil, apiErr
	}
	return data, nil
}

func (c *adminClient) transition(ctx context.Context, orderID, status, expected, reason string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+":transition", nil, map[string]string{
		"status":         status,
		"expectedStatus": expected,
		"reason":         reason,
	})
}

func (c *adminClient) refund(ctx context.Context, orderID string, items map[string]int, reason string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(orderID)+":refund", nil, map[string]any{
		"items":  items,
		"reason": reason,
	})
}

func (c *adminClient) listOrders(ctx context.Context, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/orders", query, nil)
}

func (c *adminClient) getOrder(ctx context.Context, orderID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, nil)
}

func (c *adminClient) setStock(ctx context.Context, branchID, variantID string, stock int64) ([]byte, error) {
	path := "/inventory/" + url.PathEscape(branchID) + "/" + url.PathEscape(variantID)
	return c.do(ctx, http.MethodPut, path, nil, map[string]int64{"stock": stock})
}

func (c *adminClient) upsertPromotion(ctx context.Context, code string, promo map[string]any) ([]byte, error) {
	return c.do(ctx, http.MethodPut, "/promotions/"+url.PathEscape(code), nil, promo)
}

// prettyJSON indents body for terminal output, leaving non-JSON bodies untouched.
func prettyJSON(body []byte) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return body
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
