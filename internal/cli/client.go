// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/channelchat/internal/server"
	"github.com/jeranaias/channelchat/internal/session"
)

// ErrStreamTruncated is returned when an event stream ends before its
// complete or error event.
var ErrStreamTruncated = errors.New("event stream ended without a result")

// APIError is a non-2xx answer from a channelchat server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// apiClient talks to a running channelchat server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, hc *http.Client) *apiClient {
	if hc == nil {
		// No timeout: streams last as long as the job or turn.
		hc = &http.Client{}
	}
	return &apiClient{base: strings.TrimRight(base, "/"), http: hc}
}

// post sends a JSON body and returns the response when its status is 2xx.
// The caller closes the body.
func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body server.ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		return &APIError{Status: resp.StatusCode, Message: body.Error.Message}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

// createSession opens a new chat session.
func (c *apiClient) createSession(ctx context.Context, userName string) (session.Status, error) {
	var st session.Status
	resp, err := c.post(ctx, "/api/sessions", server.CreateSessionRequest{UserName: userName})
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&st)
	return st, err
}

// attach uploads one file to a session.
func (c *apiClient) attach(ctx context.Context, sessionID, path string) (server.AttachmentResponse, error) {
	var out server.AttachmentResponse
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", contentType(path, data))
	part, err := mw.CreatePart(h)
	if err != nil {
		return out, err
	}
	if _, err := part.Write(data); err != nil {
		return out, err
	}
	if err := mw.Close(); err != nil {
		return out, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/sessions/"+sessionID+"/attachments", &buf)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

// contentType picks the upload MIME type. Datasets are named by extension;
// anything else is sniffed so images get their image/* type.
func contentType(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	}
	return http.DetectContentType(data)
}
