// Package report renders trial reports as text and pie-chart breakdowns.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/glebk/openfield/internal/domain"
	"github.com/glebk/openfield/internal/report/catalog"
)

// TimestampLayout is the Date/Time layout used in reports
const TimestampLayout = "2006-01-02 15:04:05"

// Renderer formats reports with the labels of one locale
type Renderer struct {
	tag     language.Tag
	printer *message.Printer
}

// NewRenderer creates a renderer for locale, e.g. "en-US" or "pt-BR"
func NewRenderer(locale string) (*Renderer, error) {
	bundle := catalog.Default()

	requested, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}

	tags := bundle.Tags()
	_, index, confidence := language.NewMatcher(tags).Match(requested)
	if confidence == language.No {
		return nil, fmt.Errorf("unsupported locale %q (available: %s)", locale, strings.Join(bundle.Locales(), ", "))
	}

	tag := tags[index]
	return &Renderer{
		tag:     tag,
		printer: message.NewPrinter(tag),
	}, nil
}

// Locale returns the resolved locale of the renderer
func (r *Renderer) Locale() string {
	return r.tag.String()
}

// Label returns the localized message for key
func (r *Renderer) Label(key string) string {
	return r.printer.Sprintf(message.Key(key, key))
}

// ZoneLabel returns the localized name of a zone
func (r *Renderer) ZoneLabel(z domain.Zone) string {
	return r.Label("zone." + strings.ToLower(z.String()))
}

// Render formats the report as plain text
func (r *Renderer) Render(rep *domain.Report) string {
	seconds := r.Label("report.seconds")

	var b strings.Builder
	b.WriteString(r.Label("report.title") + "\n")
	if !rep.Final() {
		b.WriteString(r.Label("report.provisional") + "\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s: %s\n", r.Label("report.subject"), rep.SubjectID)
	fmt.Fprintf(&b, "%s: %s\n", r.Label("report.datetime"), rep.GeneratedAt.Format(TimestampLayout))
	fmt.Fprintf(&b, "%s: %d %s\n", r.Label("report.planned"), int(rep.PlannedDuration/time.Second), seconds)
	fmt.Fprintf(&b, "%s: %s %s\n\n", r.Label("report.effective"), FormatSeconds(rep.EffectiveDuration), seconds)

	fmt.Fprintf(&b, "%s:\n", r.Label("report.zones"))
	for _, zr := range rep.Zones {
		fmt.Fprintf(&b, "  %s: %s %s (%s%%)\n",
			r.ZoneLabel(zr.Zone),
			FormatSeconds(zr.Time),
			seconds,
			strconv.FormatFloat(zr.Percent, 'f', 2, 64),
		)
	}

	return b.String()
}

// FormatSeconds formats d as seconds with two decimals
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 2, 64)
}

// FormatClock formats d as MM:SS, truncating fractional seconds
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
