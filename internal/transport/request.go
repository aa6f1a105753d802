package transport

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/agentstation/quorum/pkg/errors"
)

// maxErrorBody caps how much of an error response ends up in an APIError.
const maxErrorBody = 512

// DefaultHeaders are sent with every primary fetch. The source serves stale
// copies to clients that allow caching.
func DefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      {"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.5"},
		"Cache-Control":   {"no-cache"},
		"Pragma":          {"no-cache"},
	}
}

// newRequest builds a GET request carrying headers.
func newRequest(ctx context.Context, url string, headers http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapValidation("url", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// readBody drains resp and classifies its status. Anything but 200 becomes
// an *errors.APIError tagged with service; 429 and 5xx are retryable.
func readBody(resp *http.Response, service string) ([]byte, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	url := ""
	if resp.Request != nil && resp.Request.URL != nil {
		url = resp.Request.URL.String()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError(url, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, errors.NewAPIError(service, resp.StatusCode, url, msg)
	}
	return body, nil
}
