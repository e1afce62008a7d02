package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
)

type callbackResult struct {
	code string
	err  error
}

// callback receives the single OAuth redirect.
type callback struct {
	state  string
	result chan callbackResult
}

func newCallback(state string) *callback {
	return &callback{state: state, result: make(chan callbackResult, 1)}
}

func (c *callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/callback" {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	var res callbackResult
	switch {
	case q.Get("state") != c.state:
		res.err = errors.New("invalid state")
	case q.Get("error") != "":
		res.err = fmt.Errorf("consent denied: %s", q.Get("error"))
	case q.Get("code") == "":
		res.err = errors.New("missing code")
	default:
		res.code = q.Get("code")
	}

	if res.err != nil {
		http.Error(w, res.err.Error(), http.StatusBadRequest)
	} else {
		fmt.Fprintln(w, "Authorized. You can close this window.")
	}

	select {
	case c.result <- res:
	default:
	}
}

func (c *callback) wait(ctx context.Context) (string, error) {
	select {
	case res := <-c.result:
		return res.code, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for consent: %w", ctx.Err())
	}
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
