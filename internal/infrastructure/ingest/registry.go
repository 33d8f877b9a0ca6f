package ingest

import "vinyl/internal/core/ports"

// DefaultParsers is the ordered parser registry. The first parser that
// accepts a reference decides its source kind.
func DefaultParsers() []ports.Parser {
	return []ports.Parser{
		YouTubeParser{},
	}
}
