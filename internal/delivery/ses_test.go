package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"
)

func testSESClient(endpoint string) *SESClient {
	return &SESClient{
		Region:    "ap-south-1",
		AccessKey: "AKIAEXAMPLE",
		SecretKey: "secret",
		Endpoint:  endpoint,
		Now:       func() time.Time { return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC) },
	}
}

func TestSESClient_SendSuccess(t *testing.T) {
	var captured *http.Request
	var capturedBody sesRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		if err := json.NewDecoder(r.Body).Decode(&capturedBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"MessageId": "ses-msg-1"})
	}))
	defer srv.Close()

	c := testSESClient(srv.URL)
	id, err := c.Send(context.Background(), Message{
		To:       "ana@example.com",
		From:     "news@news.example.com",
		Subject:  "Weekly digest",
		HTML:     "<p>hi</p>",
		Text:     "hi",
		Category: "digest",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "ses-msg-1" {
		t.Errorf("message id = %q, want ses-msg-1", id)
	}

	if captured.URL.Path != "/v2/email/outbound-emails" {
		t.Errorf("path = %q", captured.URL.Path)
	}
	if capturedBody.FromEmailAddress != "news@news.example.com" {
		t.Errorf("from = %q", capturedBody.FromEmailAddress)
	}
	if len(capturedBody.Destination.ToAddresses) != 1 || capturedBody.Destination.ToAddresses[0] != "ana@example.com" {
		t.Errorf("destination = %v", capturedBody.Destination.ToAddresses)
	}
	if len(capturedBody.EmailTags) != 1 || capturedBody.EmailTags[0].Value != "digest" {
		t.Errorf("tags = %v", capturedBody.EmailTags)
	}
}

func TestSESClient_ProviderRejectionIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "Email address is not verified"})
	}))
	defer srv.Close()

	c := testSESClient(srv.URL)
	_, err := c.Send(context.Background(), Message{To: "ana@example.com", From: "x@y.z", Subject: "s", Text: "t"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "not verified") {
		t.Errorf("error should carry the provider reason, got %v", err)
	}
	if calls != 1 {
		t.Errorf("provider rejection retried %d times, want exactly 1 call", calls)
	}
}

func TestSESClient_SignatureHeaders(t *testing.T) {
	var auth, amzDate, contentHash string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		amzDate = r.Header.Get("X-Amz-Date")
		contentHash = r.Header.Get("X-Amz-Content-Sha256")
		json.NewEncoder(w).Encode(map[string]string{"MessageId": "ok"})
	}))
	defer srv.Close()

	c := testSESClient(srv.URL)
	if _, err := c.Send(context.Background(), Message{To: "a@b.c", From: "d@e.f", Subject: "s", Text: "t"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if amzDate != "20260115T100000Z" {
		t.Errorf("X-Amz-Date = %q", amzDate)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(contentHash) {
		t.Errorf("payload hash is not sha256 hex: %q", contentHash)
	}

	wantPrefix := "AWS4-HMAC-SHA256 Credential=AKIAEXAMPLE/20260115/ap-south-1/ses/aws4_request, SignedHeaders="
	if !strings.HasPrefix(auth, wantPrefix) {
		t.Errorf("authorization = %q, want prefix %q", auth, wantPrefix)
	}
	if !strings.Contains(auth, "content-type") || !strings.Contains(auth, "host") ||
		!strings.Contains(auth, "x-amz-content-sha256") || !strings.Contains(auth, "x-amz-date") {
		t.Errorf("signed headers incomplete: %q", auth)
	}
	if !regexp.MustCompile(`Signature=[0-9a-f]{64}$`).MatchString(auth) {
		t.Errorf("signature is not 64 hex chars: %q", auth)
	}
}

func TestSESClient_MissingCredentials(t *testing.T) {
	c := &SESClient{Region: "ap-south-1"}
	_, err := c.Send(context.Background(), Message{To: "a@b.c", From: "d@e.f", Subject: "s", Text: "t"})
	if err == nil || !strings.Contains(err.Error(), "credentials") {
		t.Errorf("want credentials error, got %v", err)
	}
}

func TestSigningKeyChain(t *testing.T) {
	// The derived key must differ per date, region and service scope.
	base := signingKey("secret", "20260115", "ap-south-1", "ses")
	otherDate := signingKey("secret", "20260116", "ap-south-1", "ses")
	otherRegion := signingKey("secret", "20260115", "us-east-1", "ses")

	if string(base) == string(otherDate) {
		t.Error("signing key must change with the date scope")
	}
	if string(base) == string(otherRegion) {
		t.Error("signing key must change with the region scope")
	}
	if string(base) != string(signingKey("secret", "20260115", "ap-south-1", "ses")) {
		t.Error("signing key derivation must be deterministic")
	}
}
