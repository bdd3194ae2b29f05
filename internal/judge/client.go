// Package judge is a thin client for the external code-execution service.
// One call runs one (code, language, stdin) unit and reports the judge's
// verdict for it; the polling protocol lives entirely here.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	// Judge status ids <= 2 mean the unit is still queued or running.
	statusMaxInFlight = 2

	// StatusTimedOut is the synthetic status for a unit whose terminal
	// verdict never arrived within the poll budget. Timeouts are a normal
	// outcome, not an error.
	StatusTimedOut = 0
)

type Client struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollAttempts int
	httpClient   *http.Client
}

func NewClient(baseURL, apiKey string, pollInterval time.Duration, pollAttempts int) *Client {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if pollAttempts <= 0 {
		pollAttempts = 10
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// UnitResult is the judge's verdict for one executed unit.
type UnitResult struct {
	Stdout            string
	Stderr            string
	CompileOutput     string
	TimeSec           float64
	MemoryKb          int
	StatusID          int
	StatusDescription string
}

func (r *UnitResult) TimedOut() bool {
	return r.StatusID == StatusTimedOut
}

type submitRequest struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

type submitResponse struct {
	Token string `json:"token"`
}

type unitStatusResponse struct {
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Time   string `json:"time"`
	Memory int    `json:"memory"`
}

// RunUnit submits one unit to the judge and polls until a terminal status or
// the attempt budget runs out. Only a failure of the submit call itself is
// returned as an error; poll failures consume attempts and fall through to
// the synthetic timeout result.
func (c *Client) RunUnit(ctx context.Context, code string, languageID int, stdin string) (*UnitResult, error) {
	token, err := c.submit(ctx, code, languageID, stdin)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		status, err := c.fetchStatus(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transient poll failure, the attempt still counts.
			continue
		}
		if status.Status.ID > statusMaxInFlight {
			return resultFromStatus(status), nil
		}
	}

	return &UnitResult{
		StatusID:          StatusTimedOut,
		StatusDescription: "Timed Out",
		Stderr:            "Timed out",
	}, nil
}

func (c *Client) submit(ctx context.Context, code string, languageID int, stdin string) (string, error) {
	body, err := json.Marshal(submitRequest{SourceCode: code, LanguageID: languageID, Stdin: stdin})
	if err != nil {
		return "", fmt.Errorf("failed to marshal judge submit request: %w", err)
	}

	url := c.baseURL + "/submissions?base64_encoded=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build judge submit request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("judge submit call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("judge submit returned status %d", resp.StatusCode)
	}

	var submitResp submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", fmt.Errorf("failed to decode judge submit response: %w", err)
	}
	if submitResp.Token == "" {
		return "", fmt.Errorf("judge submit response missing token")
	}
	return submitResp.Token, nil
}

func (c *Client) fetchStatus(ctx context.Context, token string) (*unitStatusResponse, error) {
	url := c.baseURL + "/submissions/" + token + "?base64_encoded=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build judge status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("judge status call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("judge status returned status %d", resp.StatusCode)
	}

	var status unitStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode judge status response: %w", err)
	}
	return &status, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Auth-Token", c.apiKey)
	}
}

func resultFromStatus(status *unitStatusResponse) *UnitResult {
	result := &UnitResult{
		StatusID:          status.Status.ID,
		StatusDescription: status.Status.Description,
		MemoryKb:          status.Memory,
	}
	if status.Stdout != nil {
		result.Stdout = *status.Stdout
	}
	if status.Stderr != nil {
		result.Stderr = *status.Stderr
	}
	if status.CompileOutput != nil {
		result.CompileOutput = *status.CompileOutput
	}
	if status.Time != "" {
		if t, err := strconv.ParseFloat(status.Time, 64); err == nil {
			result.TimeSec = t
		}
	}
	return result
}
