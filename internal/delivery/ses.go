package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SESClient sends through the SES v2 HTTP API with hand-rolled Signature V4
// signing, so it works in runtimes where the managed SDK is unavailable.
type SESClient struct {
	Region    string
	AccessKey string
	SecretKey string

	// Endpoint overrides the regional SES endpoint, for tests.
	Endpoint string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// Now defaults to time.Now, injectable for deterministic signing tests.
	Now func() time.Time
}

type sesContent struct {
	Data string `json:"Data"`
}

type sesBody struct {
	Html *sesContent `json:"Html,omitempty"`
	Text *sesContent `json:"Text,omitempty"`
}

type sesTag struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type sesRequest struct {
	FromEmailAddress string `json:"FromEmailAddress"`
	Destination      struct {
		ToAddresses []string `json:"ToAddresses"`
	} `json:"Destination"`
	Content struct {
		Simple struct {
			Subject sesContent `json:"Subject"`
			Body    sesBody    `json:"Body"`
		} `json:"Simple"`
	} `json:"Content"`
	EmailTags []sesTag `json:"EmailTags,omitempty"`
}

type sesResponse struct {
	MessageId string `json:"MessageId"`
	Message   string `json:"message"`
}

func (c *SESClient) endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://email.%s.amazonaws.com", c.Region)
}

func (c *SESClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *SESClient) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Send transmits one message. Network errors are retried briefly with
// exponential backoff; any HTTP response from the provider, success or
// rejection, ends the retry loop.
func (c *SESClient) Send(ctx context.Context, msg Message) (string, error) {
	payload := sesRequest{FromEmailAddress: msg.From}
	payload.Destination.ToAddresses = []string{msg.To}
	payload.Content.Simple.Subject = sesContent{Data: msg.Subject}
	if msg.HTML != "" {
		payload.Content.Simple.Body.Html = &sesContent{Data: msg.HTML}
	}
	if msg.Text != "" {
		payload.Content.Simple.Body.Text = &sesContent{Data: msg.Text}
	}
	if msg.Category != "" {
		payload.EmailTags = []sesTag{{Name: "category", Value: msg.Category}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ses: encode request: %w", err)
	}

	var messageID string
	operation := func() error {
		id, opErr := c.post(ctx, body)
		if opErr != nil {
			return opErr
		}
		messageID = id
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return messageID, nil
}

func (c *SESClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint()+"/v2/email/outbound-emails", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("ses: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.sign(req, body); err != nil {
		return "", backoff.Permanent(err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("ses: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ses: read response: %w", err)
	}

	var parsed sesResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := parsed.Message
		if reason == "" {
			reason = strings.TrimSpace(string(respBody))
		}
		return "", backoff.Permanent(fmt.Errorf("ses: status %d: %s", resp.StatusCode, reason))
	}

	return parsed.MessageId, nil
}

// sign applies AWS Signature V4 for the ses service: hash the payload, build
// the canonical request, derive the signing key through the date/region/service
// HMAC chain, and set the Authorization header.
func (c *SESClient) sign(req *http.Request, body []byte) error {
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("ses: credentials not configured")
	}

	const service = "ses"
	now := c.now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	payloadHash := sha256Hex(body)

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := strings.Join([]string{dateStamp, c.Region, service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	signingKey := signingKey(c.SecretKey, dateStamp, c.Region, service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		c.AccessKey, credentialScope, signedHeaders, signature))
	return nil
}

func canonicalizeHeaders(req *http.Request) (string, string) {
	headers := map[string][]string{
		"host": {req.URL.Host},
	}
	for k, vals := range req.Header {
		headers[strings.ToLower(k)] = vals
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical strings.Builder
	for _, k := range keys {
		trimmed := make([]string, len(headers[k]))
		for i, v := range headers[k] {
			trimmed[i] = strings.TrimSpace(v)
		}
		canonical.WriteString(k)
		canonical.WriteString(":")
		canonical.WriteString(strings.Join(trimmed, ","))
		canonical.WriteString("\n")
	}
	return canonical.String(), strings.Join(keys, ";")
}

func signingKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
