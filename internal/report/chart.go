package report

import (
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/glebk/openfield/internal/domain"
)

// ErrNoChartData is returned when no zone has any recorded time
var ErrNoChartData = errors.New("no time recorded to chart")

// chartStartAngle matches a pie whose first slice starts at twelve o'clock
const chartStartAngle = 90.0

var zoneColors = map[domain.Zone]string{
	domain.ZoneCorner:  "red",
	domain.ZoneLateral: "skyblue",
	domain.ZoneCenter:  "forestgreen",
}

// Slice is one wedge of the pie breakdown. Angles are in degrees,
// counter-clockwise from three o'clock.
type Slice struct {
	Zone       domain.Zone
	Label      string
	Color      string
	Time       time.Duration
	Fraction   float64
	StartAngle float64
	EndAngle   float64
}

// Percent returns the share of the slice as a percentage of the chart
func (s Slice) Percent() float64 {
	return s.Fraction * 100
}

// Chart is the proportional breakdown of a report over its zones
type Chart struct {
	Title  string
	Slices []Slice
}

// Breakdown builds the pie breakdown of rep, omitting zones with no
// recorded time
func (r *Renderer) Breakdown(rep *domain.Report) (*Chart, error) {
	total := rep.Total()
	if total <= 0 {
		return nil, ErrNoChartData
	}

	chart := &Chart{Title: r.Label("chart.title")}
	angle := chartStartAngle
	for _, zr := range rep.Zones {
		if zr.Time <= 0 {
			continue
		}
		fraction := zr.Time.Seconds() / total.Seconds()
		chart.Slices = append(chart.Slices, Slice{
			Zone:       zr.Zone,
			Label:      r.ZoneLabel(zr.Zone),
			Color:      zoneColors[zr.Zone],
			Time:       zr.Time,
			Fraction:   fraction,
			StartAngle: angle,
			EndAngle:   angle + fraction*360,
		})
		angle += fraction * 360
	}
	return chart, nil
}

// NoData returns the localized "nothing to chart" message
func (r *Renderer) NoData() string {
	return r.Label("chart.no_data")
}

// Bars renders the chart as one proportional bar per slice
func (c *Chart) Bars(width int) string {
	if width < 1 {
		width = 1
	}

	labelWidth := 0
	for _, s := range c.Slices {
		if n := utf8.RuneCountInString(s.Label); n > labelWidth {
			labelWidth = n
		}
	}

	var b strings.Builder
	b.WriteString(c.Title + "\n")
	for _, s := range c.Slices {
		n := int(math.Round(s.Fraction * float64(width)))
		padding := strings.Repeat(" ", labelWidth-utf8.RuneCountInString(s.Label))
		fmt.Fprintf(&b, "  %s%s %s%s %5.1f%%\n",
			s.Label, padding,
			strings.Repeat("█", n), strings.Repeat("·", width-n),
			s.Percent(),
		)
	}
	return b.String()
}

const (
	svgWidth  = 480
	svgHeight = 360
	svgRadius = 130.0
	svgCX     = svgWidth / 2.0
	svgCY     = svgHeight/2.0 + 15
)

// WriteSVG writes the chart as a standalone SVG pie
func (c *Chart) WriteSVG(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		svgWidth, svgHeight, svgWidth, svgHeight)
	fmt.Fprintf(&b, `  <rect width="100%%" height="100%%" fill="white"/>`+"\n")
	fmt.Fprintf(&b, `  <text x="%.1f" y="28" text-anchor="middle" font-family="sans-serif" font-size="16">%s</text>`+"\n",
		svgCX, html.EscapeString(c.Title))

	for _, s := range c.Slices {
		if s.Fraction >= 1 {
			fmt.Fprintf(&b, `  <circle cx="%.2f" cy="%.2f" r="%.2f" fill="%s" stroke="white"/>`+"\n",
				svgCX, svgCY, svgRadius, s.Color)
		} else {
			x1, y1 := polar(s.StartAngle, svgRadius)
			x2, y2 := polar(s.EndAngle, svgRadius)
			largeArc := 0
			if s.EndAngle-s.StartAngle > 180 {
				largeArc = 1
			}
			fmt.Fprintf(&b, `  <path d="M %.2f %.2f L %.2f %.2f A %.2f %.2f 0 %d 0 %.2f %.2f Z" fill="%s" stroke="white"/>`+"\n",
				svgCX, svgCY, x1, y1, svgRadius, svgRadius, largeArc, x2, y2, s.Color)
		}
	}

	for _, s := range c.Slices {
		mid := (s.StartAngle + s.EndAngle) / 2
		lx, ly := polar(mid, svgRadius*1.15)
		px, py := polar(mid, svgRadius*0.85)
		anchor := "start"
		if lx < svgCX {
			anchor = "end"
		}
		fmt.Fprintf(&b, `  <text x="%.2f" y="%.2f" text-anchor="%s" font-family="sans-serif" font-size="12">%s</text>`+"\n",
			lx, ly, anchor, html.EscapeString(s.Label))
		fmt.Fprintf(&b, `  <text x="%.2f" y="%.2f" text-anchor="middle" font-family="sans-serif" font-size="10">%.1f%%</text>`+"\n",
			px, py, s.Percent())
	}
	b.WriteString("</svg>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// polar converts an angle in degrees, counter-clockwise from three
// o'clock, to SVG coordinates around the chart centre
func polar(deg, radius float64) (float64, float64) {
	rad := deg * math.Pi / 180
	return svgCX + radius*math.Cos(rad), svgCY - radius*math.Sin(rad)
}
