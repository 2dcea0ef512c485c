// Package recorder is the RPC client for the external Recorder collaborator
// named in spec.md §1/§6: a start/stop HTTP call, nothing else — its RTP
// pipeline internals are explicitly out of scope. Shaped on the teacher's
// internal-API HTTP client pattern (bounded *http.Client, JSON body,
// checked status code).
package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/confplane/signaling-core/internal/domain"
)

// Client talks to the Recorder's start/stop RPC at baseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether a Recorder URL was configured at all. Callers
// should treat recording as unavailable rather than erroring when false.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// StartRequest is the body posted to the Recorder's /start endpoint.
type StartRequest struct {
	IP          string              `json:"ip"`
	Port        int                 `json:"port"`
	Codec       string              `json:"codec"`
	ProducerID  domain.ProducerID   `json:"producerId"`
	PayloadType uint8               `json:"payloadType"`
	SSRC        uint32              `json:"ssrc"`
}

// StartResponse is the Recorder's reply to /start.
type StartResponse struct {
	OK         bool   `json:"ok"`
	OutputFile string `json:"outputFile"`
}

func (c *Client) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	var resp StartResponse
	if err := c.post(ctx, "/start", req, &resp); err != nil {
		return StartResponse{}, err
	}
	if !resp.OK {
		return StartResponse{}, fmt.Errorf("recorder: start rejected for producer %s", req.ProducerID)
	}
	return resp, nil
}

func (c *Client) Stop(ctx context.Context, producerID domain.ProducerID) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.post(ctx, "/stop", map[string]domain.ProducerID{"producerId": producerID}, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("recorder: stop rejected for producer %s", producerID)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("recorder: request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recorder: %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
