package ingest

import (
	"testing"

	"vinyl/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestYouTubeParser(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		wantID    string
		valid     bool
	}{
		{"full url with www", "https://www.youtube.com/watch?v=RiZ_5jo9WBg", "RiZ_5jo9WBg", true},
		{"full url without www", "https://youtube.com/watch?v=RiZ_5jo9WBg", "RiZ_5jo9WBg", true},
		{"no scheme", "youtube.com/watch?v=RiZ_5jo9WBg", "RiZ_5jo9WBg", true},
		{"extra params", "https://www.youtube.com/watch?v=RiZ_5jo9WBg&t=42s", "RiZ_5jo9WBg", true},
		{"short link", "https://youtu.be/RiZ_5jo9WBg", "RiZ_5jo9WBg", true},
		{"short link with query", "youtu.be/RiZ_5jo9WBg?si=abc", "RiZ_5jo9WBg", true},
		{"misspelled host", "yourtube.com/watch?v=RiZ_5jo9WBg", "", false},
		{"other site", "https://google.com", "", false},
		{"garbage", "kpofkagt", "", false},
		{"channel page", "https://www.youtube.com/@someone", "", false},
		{"empty id", "https://www.youtube.com/watch?v=", "", false},
		{"host only", "youtu.be", "", false},
		{"lookalike host", "https://notyoutube.com/watch?v=RiZ_5jo9WBg", "", false},
	}

	p := YouTubeParser{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, ok := p.Parse(tt.reference)
			assert.Equal(t, tt.valid, ok)
			if !tt.valid {
				assert.Nil(t, input)
				return
			}
			video, isVideo := input.(domain.YouTubeVideo)
			if assert.True(t, isVideo) {
				assert.Equal(t, tt.wantID, video.VideoID)
				assert.Equal(t, "https://www.youtube.com/watch?v="+tt.wantID, video.Reference())
			}
		})
	}
}

func TestDefaultParsers(t *testing.T) {
	parsers := DefaultParsers()
	if assert.Len(t, parsers, 1) {
		assert.Equal(t, "youtube", parsers[0].Name())
	}
}
