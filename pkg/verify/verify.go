// Package verify checks registered serial numbers against the compliance
// API. Verification is best-effort: each serial gets an individual status
// string and a transport or API error for one serial never aborts the rest.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusNotVerified is reported for every serial when no credentials were
// supplied.
const StatusNotVerified = "NOT VERIFIED - No credentials"

// Credentials authenticate against the compliance API. Both fields are
// required; a partial pair counts as no credentials.
type Credentials struct {
	SessionCookie string
	CSRFToken     string
}

func (c Credentials) complete() bool {
	return c.SessionCookie != "" && c.CSRFToken != ""
}

// Client queries the compliance API one serial at a time.
type Client struct {
	apiURL     string
	httpClient *http.Client
}

// NewClient creates a client for the given compliance API endpoint.
func NewClient(apiURL string) *Client {
	return &Client{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// apiResponse is the datatables-style envelope the compliance API returns.
type apiResponse struct {
	Data []struct {
		CompositeStatus string `json:"composite_status_datatables_search"`
	} `json:"data"`
}

// VerifySerials returns a per-serial status string: "PASS" for a compliant
// record, the raw composite status otherwise, "NOT FOUND" when the API has
// no record, and an error description when the lookup itself failed.
func (c *Client) VerifySerials(ctx context.Context, serials []string, creds Credentials) map[string]string {
	results := make(map[string]string, len(serials))

	if !creds.complete() {
		for _, serial := range serials {
			results[serial] = StatusNotVerified
		}
		return results
	}

	for _, serial := range serials {
		results[serial] = c.verifyOne(ctx, serial, creds)
	}
	return results
}

func (c *Client) verifyOne(ctx context.Context, serial string, creds Credentials) string {
	payload := url.Values{
		"draw":          {"1"},
		"start":         {"0"},
		"length":        {"12"},
		"search[value]": {serial},
		"search[regex]": {"false"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(payload.Encode()))
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	req.Header.Set("Cookie", fmt.Sprintf("sessionid=%s; csrftoken=%s", creds.SessionCookie, creds.CSRFToken))
	req.Header.Set("X-Csrftoken", creds.CSRFToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("API Error: %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if len(body.Data) == 0 {
		return "NOT FOUND"
	}

	composite := body.Data[0].CompositeStatus
	if strings.Contains(composite, "In Compliance") && !strings.Contains(composite, "Issue") {
		return "PASS"
	}
	if composite == "" {
		return "Unknown"
	}
	return composite
}

// Summary tallies verification results.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Summarize counts PASS results against the total.
func Summarize(results map[string]string) Summary {
	s := Summary{Total: len(results)}
	for _, status := range results {
		if status == "PASS" {
			s.Passed++
		}
	}
	s.Failed = s.Total - s.Passed
	return s
}
