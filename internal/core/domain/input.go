package domain

type SourceKind string

const (
	SourceYouTube SourceKind = "youtube"
)

// Input is a validated reference to a requested audio item. The variant set is
// closed: consumers switch over the concrete types exhaustively, and a new
// source kind is added as a new variant plus one parser entry.
type Input interface {
	Kind() SourceKind
	Reference() string
	isInput()
}

// YouTubeVideo references a single video on YouTube.
type YouTubeVideo struct {
	VideoID string
	URL     string
}

func (YouTubeVideo) Kind() SourceKind    { return SourceYouTube }
func (v YouTubeVideo) Reference() string { return v.URL }
func (v YouTubeVideo) String() string    { return v.URL }
func (YouTubeVideo) isInput()            {}
