package transport

import (
	"context"
	"net/url"
	"strings"

	"github.com/agentstation/quorum/pkg/errors"
	"github.com/agentstation/quorum/pkg/job"
)

// Placeholder marks where the target id goes in a source URL template.
const Placeholder = "{id}"

// Fetcher retrieves target documents from a URL template such as
// "https://example.org/records/{id}".
type Fetcher struct {
	client   *Client
	template string
}

var _ job.Fetcher = (*Fetcher)(nil)

// NewFetcher validates template and binds it to client.
func NewFetcher(client *Client, template string) (*Fetcher, error) {
	if !strings.Contains(template, Placeholder) {
		return nil, errors.NewValidationError("source.url", template, "must contain "+Placeholder)
	}
	if _, err := url.Parse(strings.ReplaceAll(template, Placeholder, "x")); err != nil {
		return nil, errors.WrapValidation("source.url", err)
	}
	return &Fetcher{client: client, template: template}, nil
}

// URL returns the document URL of targetID.
func (f *Fetcher) URL(targetID string) string {
	return strings.ReplaceAll(f.template, Placeholder, url.PathEscape(targetID))
}

// Fetch implements job.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, targetID string) ([]byte, error) {
	return f.client.Get(ctx, f.URL(targetID))
}
