// Package export writes finalized trial reports to files.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/glebk/openfield/internal/domain"
	"github.com/glebk/openfield/internal/report"
)

// Format is an export file format
type Format string

const (
	FormatText Format = "txt"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name; empty means text
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownFormat, s)
}

// DefaultFilename builds report_<subject>_<YYYYMMDD_HHMMSS>.<ext>
func DefaultFilename(subjectID string, now time.Time, format Format) string {
	return fmt.Sprintf("report_%s_%s.%s", sanitize(subjectID), now.Format("20060102_150405"), format)
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, strings.TrimSpace(s))
	if s == "" || strings.Trim(s, ".") == "" {
		return "subject"
	}
	return s
}

// Result describes the files written by an export
type Result struct {
	Path      string
	ChartPath string
}

// Exporter writes reports under a base directory
type Exporter struct {
	dir       string
	renderer  *report.Renderer
	withChart bool
}

// Option configures an Exporter
type Option func(*Exporter)

// WithChart also writes an SVG pie chart next to text exports
func WithChart(enabled bool) Option {
	return func(e *Exporter) {
		e.withChart = enabled
	}
}

// NewExporter creates an exporter writing relative paths under dir
func NewExporter(dir string, renderer *report.Renderer, opts ...Option) *Exporter {
	if dir == "" {
		dir = "."
	}
	e := &Exporter{dir: dir, renderer: renderer}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dir returns the base directory
func (e *Exporter) Dir() string {
	return e.dir
}

// Resolve returns the path a report would be exported to. An empty path
// yields the default filename; relative paths resolve under Dir.
func (e *Exporter) Resolve(rep *domain.Report, path string, format Format, now time.Time) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultFilename(rep.SubjectID, now, format)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.dir, path)
	}
	return path
}

// Export writes rep to path in the given format. Write failures are
// returned as *domain.IOError; rep is left untouched for a retry.
func (e *Exporter) Export(rep *domain.Report, path string, format Format, now time.Time) (*Result, error) {
	if rep == nil {
		return nil, domain.ErrNoReport
	}

	var data []byte
	switch format {
	case FormatText:
		data = []byte(e.renderer.Render(rep))
	case FormatYAML:
		var err error
		data, err = e.marshalYAML(rep)
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFormat, format)
	}

	target := e.Resolve(rep, path, format, now)
	if err := writeFile(target, data); err != nil {
		return nil, err
	}

	result := &Result{Path: target}
	if e.withChart && format == FormatText {
		chartPath := strings.TrimSuffix(target, filepath.Ext(target)) + ".svg"
		written, err := e.WriteChart(rep, chartPath)
		if err != nil {
			return result, err
		}
		if written {
			result.ChartPath = chartPath
		}
	}

	return result, nil
}

// WriteChart writes the SVG pie of rep to path. It returns false
// without writing anything when the report has no recorded time.
func (e *Exporter) WriteChart(rep *domain.Report, path string) (bool, error) {
	chart, err := e.renderer.Breakdown(rep)
	if errors.Is(err, report.ErrNoChartData) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(e.dir, path)
	}

	var buf bytes.Buffer
	if err := chart.WriteSVG(&buf); err != nil {
		return false, fmt.Errorf("failed to render chart: %w", err)
	}
	if err := writeFile(path, buf.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &domain.IOError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &domain.IOError{Path: path, Err: err}
	}
	return nil
}

type yamlZone struct {
	Zone    string  `yaml:"zone"`
	Label   string  `yaml:"label"`
	Seconds float64 `yaml:"seconds"`
	Percent float64 `yaml:"percent"`
}

type yamlReport struct {
	AnimalID         string     `yaml:"animal_id"`
	DateTime         string     `yaml:"date_time"`
	Locale           string     `yaml:"locale"`
	StopReason       string     `yaml:"stop_reason"`
	PlannedSeconds   int        `yaml:"planned_seconds"`
	EffectiveSeconds float64    `yaml:"effective_seconds"`
	Areas            []yamlZone `yaml:"accumulated_per_area"`
}

func (e *Exporter) marshalYAML(rep *domain.Report) ([]byte, error) {
	out := yamlReport{
		AnimalID:         rep.SubjectID,
		DateTime:         rep.GeneratedAt.Format(report.TimestampLayout),
		Locale:           e.renderer.Locale(),
		StopReason:       string(rep.Reason),
		PlannedSeconds:   int(rep.PlannedDuration / time.Second),
		EffectiveSeconds: round2(rep.EffectiveDuration.Seconds()),
	}
	for _, zr := range rep.Zones {
		out.Areas = append(out.Areas, yamlZone{
			Zone:    strings.ToLower(zr.Zone.String()),
			Label:   e.renderer.ZoneLabel(zr.Zone),
			Seconds: round2(zr.Seconds()),
			Percent: round2(zr.Percent),
		})
	}
	return yaml.Marshal(out)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
