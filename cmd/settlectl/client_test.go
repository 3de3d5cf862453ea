package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/auth"
)

const testSecret = "shared-admin-secret"

type capturedRequest struct {
	method   string
	path     string
	query    url.Values
	operator string
	body     map[string]any
}

func newSignedServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	validator := auth.NewHMACValidator(auth.SecretProviderFunc(func(_ context.Context, name string) (string, error) {
		if name != "admin" {
			return "", errors.New("unknown secret")
		}
		return testSecret, nil
	}), auth.NewInMemoryNonceStore())

	handler := validator.RequireHMAC("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.EscapedPath()
		captured.query = r.URL.Query()
		captured.operator, _ = auth.OperatorFromContext(r.Context())
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &captured.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestNewAdminClientValidatesInputs(t *testing.T) {
	_, err := newAdminClient("", testSecret, "ops", time.Second)
	assert.Error(t, err)
	_, err = newAdminClient("http://localhost", "", "ops", time.Second)
	assert.Error(t, err)
	_, err = newAdminClient("http://localhost", testSecret, " ", time.Second)
	assert.Error(t, err)

	client, err := newAdminClient("http://localhost:8080/", testSecret, "ops", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", client.baseURL)
}

func TestAdminClientTransitionIsSigned(t *testing.T) {
	srv, captured := newSignedServer(t, http.StatusOK, `{"id":"o-1","status":"shipping"}`)
	client, err := newAdminClient(srv.URL, testSecret, "ops-7", time.Second)
	require.NoError(t, err)

	body, err := client.transition(context.Background(), "o-1", "shipping", "processing", "picked up")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"o-1","status":"shipping"}`, string(body))

	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "/api/v1/admin/orders/o-1:transition", captured.path)
	assert.Equal(t, "ops-7", captured.operator)
	assert.Equal(t, "shipping", captured.body["status"])
	assert.Equal(t, "processing", captured.body["expectedStatus"])
}

func TestAdminClientListOrdersSendsQuery(t *testing.T) {
	srv, captured := newSignedServer(t, http.StatusOK, `{"orders":[]}`)
	client, err := newAdminClient(srv.URL, testSecret, "ops-7", time.Second)
	require.NoError(t, err)

	_, err = client.listOrders(context.Background(), url.Values{"status": {"pending,processing"}, "buyerId": {"b-1"}})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, captured.method)
	assert.Equal(t, "pending,processing", captured.query.Get("status"))
	assert.Equal(t, "b-1", captured.query.Get("buyerId"))
}

func TestAdminClientDecodesErrorEnvelope(t *testing.T) {
	srv, _ := newSignedServer(t, http.StatusConflict, `{"error":"order_conflict","message":"order is not processing","status":409}`)
	client, err := newAdminClient(srv.URL, testSecret, "ops-7", time.Second)
	require.NoError(t, err)

	_, err = client.setStock(context.Background(), "hcm-1", "v-apple", 3)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "order_conflict", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "order is not processing")
}

func TestAdminClientWrongSecretRejected(t *testing.T) {
	srv, _ := newSignedServer(t, http.StatusOK, `{}`)
	client, err := newAdminClient(srv.URL, "not-the-secret", "ops-7", time.Second)
	require.NoError(t, err)

	_, err = client.getOrder(context.Background(), "o-1")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "signature_mismatch", apiErr.Code)
}

func TestParseRefundItems(t *testing.T) {
	items, err := parseRefundItems([]string{"v-apple=2", " v-pear = 1", "v-apple=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"v-apple": 3, "v-pear": 1}, items)

	for _, bad := range []string{"v-apple", "=2", "v-apple=0", "v-apple=-1", "v-apple=two"} {
		_, err := parseRefundItems([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPrettyJSON(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}\n", string(prettyJSON([]byte(`{"a":1}`))))
	assert.Equal(t, "plain", string(prettyJSON([]byte("plain"))))
}
