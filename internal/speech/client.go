// Package speech is a client for the batch avatar synthesis REST API.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned when the service answers with HTTP status >= 400.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech %s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying: transport failures,
// 408, 429 and 5xx answers. Other 4xx answers are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusRequestTimeout ||
			se.StatusCode == http.StatusTooManyRequests ||
			se.StatusCode >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// maxErrorBody caps how much of an error response is kept for logs.
const maxErrorBody = 4 << 10

type Options struct {
	Endpoint   string
	APIVersion string
	Auth       Authenticator
	// RequestTimeout bounds each API call. Downloads are bounded by ctx only.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client talks to {Endpoint}/avatar/batchsyntheses.
type Client struct {
	endpoint   string
	apiVersion string
	auth       Authenticator
	timeout    time.Duration
	client     *http.Client
}

func NewClient(opt Options) *Client {
	hc := opt.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opt.RequestTimeout == 0 {
		opt.RequestTimeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(opt.Endpoint, "/"),
		apiVersion: opt.APIVersion,
		auth:       opt.Auth,
		timeout:    opt.RequestTimeout,
		client:     hc,
	}
}

// JobURL is the per-job resource used for submit, status and delete.
func (c *Client) JobURL(id string) string {
	q := url.Values{"api-version": {c.apiVersion}}
	return c.endpoint + "/avatar/batchsyntheses/" + url.PathEscape(id) + "?" + q.Encode()
}

func (c *Client) listURL(skip, maxPageSize int) string {
	q := url.Values{
		"api-version": {c.apiVersion},
		"skip":        {strconv.Itoa(skip)},
		"maxpagesize": {strconv.Itoa(maxPageSize)},
	}
	return c.endpoint + "/avatar/batchsyntheses?" + q.Encode()
}

// Submit creates job id with body req. Any status below 400 counts as accepted.
func (c *Client) Submit(ctx context.Context, id string, req SynthesisRequest) (*Synthesis, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var out Synthesis
	if err := c.do(ctx, "submit", http.MethodPut, c.JobURL(id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches the current state of job id.
func (c *Client) Get(ctx context.Context, id string) (*Synthesis, error) {
	var out Synthesis
	if err := c.do(ctx, "get", http.MethodGet, c.JobURL(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns one page of the jobs known to the speech resource.
func (c *Client) List(ctx context.Context, skip, maxPageSize int) (*SynthesisList, error) {
	var out SynthesisList
	if err := c.do(ctx, "list", http.MethodGet, c.listURL(skip, maxPageSize), nil, &out); err != nil {
		return nil, err
	}
	if out.Value == nil {
		out.Value = []Synthesis{}
	}
	return &out, nil
}

// Delete removes job id and its outputs from the speech resource.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, c.JobURL(id), nil, nil)
}

// Download opens the result video at resultURL. The URL is pre-signed, so no
// credential header is sent. The caller closes the returned body.
func (c *Client) Download(ctx context.Context, resultURL string) (body io.ReadCloser, contentType string, size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, "", 0, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, "", 0, err
	}
	if res.StatusCode >= 400 {
		defer res.Body.Close()
		return nil, "", 0, statusError("download", res)
	}
	return res.Body, res.Header.Get("Content-Type"), res.ContentLength, nil
}

func (c *Client) do(ctx context.Context, op, method, target string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	h, err := c.auth.Header(ctx)
	if err != nil {
		return err
	}
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return statusError(op, res)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("speech %s: decode response: %w", op, err)
	}
	return nil
}

func statusError(op string, res *http.Response) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return &StatusError{Op: op, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(b))}
}
