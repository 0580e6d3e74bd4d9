package reporting

import "github.com/mirono/webtrees/internal/domain/report"

// Style names shared by the bundled report definitions.
const (
	styleTitle    = "title"
	styleSection  = "section"
	styleLabel    = "label"
	styleBody     = "body"
	styleSmall    = "small"
	styleFootnote = "footnote"
)

// registerStyles installs the style set every bundled report renders with.
// Body is registered first so it doubles as the document fallback style.
func registerStyles(doc *report.Document) error {
	styles := []report.Style{
		{Name: styleBody, Font: report.FontHelvetica, Size: 10},
		{Name: styleTitle, Font: report.FontTimes, Bold: true, Size: 16},
		{Name: styleSection, Font: report.FontTimes, Bold: true, Size: 12},
		{Name: styleLabel, Font: report.FontHelvetica, Bold: true, Size: 10},
		{Name: styleSmall, Font: report.FontHelvetica, Size: 8, Color: "#555555"},
		{Name: styleFootnote, Font: report.FontHelvetica, Size: 8},
	}
	for _, s := range styles {
		if err := doc.AddStyle(s); err != nil {
			return err
		}
	}
	return nil
}
