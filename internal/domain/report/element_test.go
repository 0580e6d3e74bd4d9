package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/pkg/errors"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = ParseFormat(" HTML ")
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, f)

	_, err = ParseFormat("docx")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeReportFormatUnknown))
}

func TestFormatArtifactMetadata(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "application/pdf", FormatPDF.MediaType())
	assert.Equal(t, ".pdf", FormatPDF.Extension())
	assert.Equal(t, "text/html; charset=utf-8", FormatHTML.MediaType())
	assert.Equal(t, ".html", FormatHTML.Extension())
}

func TestBorderHas(t *testing.T) {
	t.Parallel()

	b := BorderTop | BorderBottom
	assert.True(t, b.Has(BorderTop))
	assert.True(t, b.Has(BorderBottom))
	assert.False(t, b.Has(BorderLeft))
	assert.False(t, b.Has(BorderRight))

	assert.True(t, BorderAll.Has(BorderLeft))
	assert.False(t, BorderNone.Has(BorderTop))
}

func TestStyleFlagString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		style Style
		want  string
	}{
		{name: "plain", style: Style{}, want: ""},
		{name: "bold", style: Style{Bold: true}, want: "B"},
		{name: "italic", style: Style{Italic: true}, want: "I"},
		{name: "bold italic", style: Style{Bold: true, Italic: true}, want: "BI"},
		{name: "all flags", style: Style{Bold: true, Italic: true, Underline: true}, want: "BIU"},
		{name: "underline only", style: Style{Underline: true}, want: "U"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.style.FlagString())
		})
	}
}

func TestStyleLineHeight(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 15, Style{Size: 12}.LineHeight(), 0.001)
	assert.Zero(t, Style{}.LineHeight())
}
