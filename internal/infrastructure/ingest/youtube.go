// Package ingest holds the source-specific halves of the ingestion
// pipeline: reference parsers, the metadata prober and the stream resolver.
package ingest

import (
	"strings"

	"vinyl/internal/core/domain"
)

const (
	youtubeHost      = "youtube.com"
	youtubeShortHost = "youtu.be"
	watchPrefix      = "watch?v="
)

// YouTubeParser accepts youtube.com/watch?v=<id> and youtu.be/<id>, with or
// without scheme and www prefix. Hosts are matched exactly.
type YouTubeParser struct{}

func (YouTubeParser) Name() string { return string(domain.SourceYouTube) }

func (YouTubeParser) Parse(reference string) (domain.Input, bool) {
	id, ok := youtubeVideoID(reference)
	if !ok {
		return nil, false
	}
	return domain.YouTubeVideo{
		VideoID: id,
		URL:     "https://www.youtube.com/watch?v=" + id,
	}, true
}

func youtubeVideoID(reference string) (string, bool) {
	rest := reference
	if _, after, found := strings.Cut(rest, "://"); found {
		rest = after
	}
	rest = strings.TrimPrefix(rest, "www.")

	host, path, found := strings.Cut(rest, "/")
	if !found {
		return "", false
	}

	var id string
	switch host {
	case youtubeHost:
		if !strings.HasPrefix(path, watchPrefix) {
			return "", false
		}
		id = strings.TrimPrefix(path, watchPrefix)
	case youtubeShortHost:
		id = path
	default:
		return "", false
	}

	// Drop any trailing query parameters or fragment.
	if i := strings.IndexAny(id, "&?#/"); i >= 0 {
		id = id[:i]
	}
	return id, id != ""
}
