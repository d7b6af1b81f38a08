// Package airtable mirrors uploaded images into Airtable tracking tables.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL     = "https://api.airtable.com/v0"
	defaultHTTPTimeout = 10 * time.Second
)

// Attachment is an Airtable attachment cell value. Airtable downloads url.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// Record is a row to create.
type Record struct {
	Fields map[string]any `json:"fields"`
}

type createRequest struct {
	Records  []Record `json:"records"`
	Typecast bool     `json:"typecast,omitempty"`
}

// CreatedRecord is one row of the create response.
type CreatedRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

type createResponse struct {
	Records []CreatedRecord `json:"records"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Airtable REST API with a bearer token.
type Client struct {
	token      string
	baseURL    string
	baseID     string
	httpClient *http.Client
}

func NewClient(token, baseID string) *Client {
	return &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		baseID:     baseID,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetBaseURL overrides the API base URL.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// CreateRecords inserts records into table.
func (c *Client) CreateRecords(ctx context.Context, table string, records ...Record) ([]CreatedRecord, error) {
	if c.token == "" || c.baseID == "" {
		return nil, fmt.Errorf("airtable: client not configured")
	}
	body, err := json.Marshal(createRequest{Records: records, Typecast: true})
	if err != nil {
		return nil, fmt.Errorf("airtable: marshal records: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("airtable: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("airtable: create records: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("airtable: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Type != "" {
			return nil, fmt.Errorf("airtable: %s (status %d): %s", apiErr.Error.Type, resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("airtable: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var created createResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("airtable: unmarshal response: %w", err)
	}
	return created.Records, nil
}
