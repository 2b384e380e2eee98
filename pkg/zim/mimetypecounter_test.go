package zim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 5: a counter body with mimetypes carrying embedded parameters
// parses to exact counts, and media_count must total image/* (not text/*).
func TestParseCounterComplexMimetypes(t *testing.T) {
	body := "application/javascript=8;text/html=3;text/html;raw=true=6336;image/png=968"
	counts, err := ParseCounter(body)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"application/javascript": 8,
		"text/html":              3,
		"text/html;raw=true":     6336,
		"image/png":              968,
	}, counts)

	mediaTotal := 0
	textTotal := 0
	for mime, n := range counts {
		switch {
		case len(mime) >= 6 && mime[:6] == "image/":
			mediaTotal += n
		case len(mime) >= 10 && mime[:10] == "text/html;", mime == "text/html":
			textTotal += n
		}
	}
	assert.Equal(t, 968, mediaTotal)
	assert.Equal(t, 6339, textTotal)
}

func TestFormatCounterRoundTrip(t *testing.T) {
	mimetypes := []string{"text/html", "image/png"}
	counts := map[string]int{"text/html": 1, "image/png": 2}
	body := FormatCounter(mimetypes, counts)
	assert.Equal(t, "text/html=1;image/png=2", body)

	parsed, err := ParseCounter(body)
	require.NoError(t, err)
	assert.Equal(t, counts, parsed)
}
