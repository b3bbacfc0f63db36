package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client talks to the session provisioning service over HTTP.
type Client struct {
	// ServerAddr is the base URL of the service, e.g. http://127.0.0.1:8080.
	ServerAddr string

	// HTTPClient overrides http.DefaultClient when set.
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// StartSession requests a new connection attempt. A 409 from the server is
// surfaced as an error naming the conflict.
func (c *Client) StartSession(req *StartSessionRequest) (*StartSessionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Post(
		fmt.Sprintf("%s/start-session", c.ServerAddr),
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("could not request start-session endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("start-session endpoint returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("start-session endpoint returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed StartSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse start-session response: %w", err)
	}
	return &parsed, nil
}

// Status fetches the current coordinator snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.httpClient().Get(fmt.Sprintf("%s/status", c.ServerAddr))
	if err != nil {
		return nil, fmt.Errorf("could not request status endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var parsed StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("could not parse status response: %w", err)
	}
	return &parsed, nil
}
