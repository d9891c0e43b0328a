package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// daemonTimeout bounds every request to the dispatch daemon.
const daemonTimeout = 10 * time.Second

var daemonHTTP = &http.Client{Timeout: daemonTimeout}

// daemonError carries the HTTP status the daemon answered with.
type daemonError struct {
	status int
	body   string
}

func (e *daemonError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.status, e.body)
}

// apiGet fetches a daemon endpoint and decodes the JSON response into
// out. Pass nil to discard the body.
func apiGet(path string, out interface{}) error {
	return daemonDo(http.MethodGet, path, nil, out)
}

// apiPost sends a JSON payload to a daemon endpoint and decodes the
// response into out when out is non-nil.
func apiPost(path string, payload, out interface{}) error {
	return daemonDo(http.MethodPost, path, payload, out)
}

func daemonDo(method, path string, payload, out interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiAddr+path, reqBody)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := daemonHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", apiAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &daemonError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
