package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var ctx = context.Background()

func TestGet_DecodesResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/feature-groups/tx" {
			t.Errorf("path = %q, want /v1/feature-groups/tx", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %q, want Bearer test-key", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"tx","status":"Created"}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "test-key")

	var out struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := c.Get(ctx, "/v1/feature-groups/tx", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "tx" || out.Status != "Created" {
		t.Errorf("decoded = %+v, want name=tx status=Created", out)
	}
}

func TestPost_SendsJSONBody(t *testing.T) {
	var gotBody string
	var gotContentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	in := map[string]string{"name": "identity"}
	if err := c.Post(ctx, "/v1/feature-groups", in, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q, want application/json", gotContentType)
	}
	if !strings.Contains(gotBody, `"name":"identity"`) {
		t.Errorf("body = %q, want it to contain name field", gotBody)
	}
}

func TestDo_ParsesErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"already_exists","message":"feature group tx already exists"}}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	err := c.Post(ctx, "/v1/feature-groups", map[string]string{"name": "tx"}, nil)
	if err == nil {
		t.Fatal("expected error for 409 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", apiErr.StatusCode)
	}
	if apiErr.Code != "already_exists" {
		t.Errorf("code = %q, want already_exists", apiErr.Code)
	}
	if !strings.Contains(apiErr.Error(), "already exists") {
		t.Errorf("message = %q, want it to mention the conflict", apiErr.Error())
	}
}

func TestDo_PlainTextErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("something broke"))
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	err := c.Get(ctx, "/v1/queries/q1", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Message != "something broke" {
		t.Errorf("message = %q, want raw body", apiErr.Message)
	}
}

func TestDo_RetriesThrottling(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":"throttled","message":"slow down"}}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	c.retryBackoff = time.Millisecond

	if err := c.Get(ctx, "/v1/feature-groups", nil); err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestParseRetryAfter_BothForms(t *testing.T) {
	if got := parseRetryAfter("7"); got != 7*time.Second {
		t.Errorf("delta-seconds: got %v, want 7s", got)
	}

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > 30*time.Second {
		t.Errorf("http-date: got %v, want positive duration <= 30s", got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("past http-date: got %v, want 0", got)
	}

	if got := parseRetryAfter("not-a-date"); got != 0 {
		t.Errorf("garbage: got %v, want 0", got)
	}
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	c.retryBackoff = time.Millisecond

	err := c.Get(ctx, "/v1/feature-groups", nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != maxRetries {
		t.Errorf("attempts = %d, want %d", attempts, maxRetries)
	}
	if !strings.Contains(err.Error(), "throttled after") {
		t.Errorf("error = %q, want retry exhaustion message", err.Error())
	}
}

func TestDo_NoRetryOnClientError(t *testing.T) {
	attempts := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"invalid","message":"bad schema"}}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	c.retryBackoff = time.Millisecond

	err := c.Post(ctx, "/v1/feature-groups", map[string]string{}, nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 400)", attempts)
	}
}

func TestIsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"not_found","message":"no such record"}}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	err := c.Get(ctx, "/v1/feature-groups/missing/records", nil)
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("IsNotFound(plain error) = true, want false")
	}
}

func TestDoRaw_SetsContentType(t *testing.T) {
	var gotContentType, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{"score":0.93}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	var out struct {
		Score float64 `json:"score"`
	}
	err := c.DoRaw(ctx, http.MethodPost, "/v1/endpoints/fraud/invocations", "text/csv", strings.NewReader("0.5,1,3"), &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotContentType != "text/csv" {
		t.Errorf("content type = %q, want text/csv", gotContentType)
	}
	if gotBody != "0.5,1,3" {
		t.Errorf("body = %q, want raw CSV row", gotBody)
	}
	if out.Score != 0.93 {
		t.Errorf("score = %v, want 0.93", out.Score)
	}
}

func TestHealthy_Down(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	c := New(ts.URL, "")
	if c.Healthy(ctx) {
		t.Error("Healthy = true for closed server, want false")
	}
}
