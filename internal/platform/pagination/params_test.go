package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d, got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" || len(params.Cursor.StartAfter) != 0 {
		t.Fatalf("expected empty cursor, got %+v", params)
	}
}

func TestParsePageSize(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		opts    Options
		want    int
		wantErr error
	}{
		{name: "explicit", raw: "10", want: 10},
		{name: "clamped", raw: "500", opts: Options{MaxPageSize: 50}, want: 50},
		{name: "default capped by max", raw: "", opts: Options{DefaultPageSize: 80, MaxPageSize: 30}, want: 30},
		{name: "zero", raw: "0", wantErr: ErrInvalidPageSize},
		{name: "negative", raw: "-3", wantErr: ErrInvalidPageSize},
		{name: "not a number", raw: "ten", wantErr: ErrInvalidPageSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params, err := Parse(url.Values{"pageSize": {tc.raw}}, tc.opts)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if params.PageSize != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, params.PageSize)
			}
		})
	}
}

func TestTokenRoundTripThroughRequest(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2024-01-01T00:00:00Z", "ord_1"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := httptest.NewRequest("GET", "/api/v1/orders?pageToken="+url.QueryEscape(token), nil)

	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("expected token preserved")
	}
	if len(params.Cursor.StartAfter) != 2 || params.Cursor.StartAfter[1] != "ord_1" {
		t.Fatalf("unexpected cursor %+v", params.Cursor)
	}
}

func TestParseRejectsGarbageToken(t *testing.T) {
	_, err := Parse(url.Values{"pageToken": {"%%%not-base64"}}, Options{})
	if !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestEncodeEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil || token != "" {
		t.Fatalf("expected empty token, got %q, %v", token, err)
	}
}
