package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vinyl/internal/core/domain"
)

// OEmbedProber reads title and author from an oEmbed endpoint. It is a
// single HTTP round trip, much cheaper than a full stream resolution.
type OEmbedProber struct {
	endpoint string
	client   *http.Client
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

func NewOEmbedProber(endpoint string, timeout time.Duration) *OEmbedProber {
	return &OEmbedProber{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *OEmbedProber) Probe(ctx context.Context, input domain.Input) (domain.Metadata, error) {
	q := url.Values{}
	q.Set("url", input.Reference())
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("build oembed request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("oembed request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return domain.Metadata{}, fmt.Errorf("video unavailable (oembed status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.Metadata{}, fmt.Errorf("oembed status %d", resp.StatusCode)
	}

	var body oembedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return domain.Metadata{}, fmt.Errorf("decode oembed response: %w", err)
	}

	title := strings.TrimSpace(body.Title)
	if title == "" {
		return domain.Metadata{}, fmt.Errorf("oembed %s: %w", input.Reference(), domain.ErrMissingFields)
	}
	return domain.Metadata{Title: title, Channel: strings.TrimSpace(body.AuthorName)}, nil
}
