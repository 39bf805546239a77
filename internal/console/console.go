// Package console provides the interactive operator console for running
// open field trials from a terminal.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/glebk/openfield/internal/domain"
	"github.com/glebk/openfield/internal/export"
	"github.com/glebk/openfield/internal/report"
	"github.com/glebk/openfield/internal/service"
)

// Prompt is shown while no trial is running
const Prompt = "openfield> "

const barWidth = 30

// Settings holds the console defaults taken from configuration
type Settings struct {
	DurationSeconds int
	ExportFormat    export.Format
}

// Console dispatches operator commands to the trial service
type Console struct {
	ctx      context.Context
	svc      *service.TrialService
	renderer *report.Renderer
	settings Settings
	out      io.Writer

	promptMu  sync.Mutex
	setPrompt func(string)
}

// New creates a console writing to out. Tick and finish notifications of
// svc are printed to out as well.
func New(ctx context.Context, svc *service.TrialService, renderer *report.Renderer, settings Settings, out io.Writer) *Console {
	if settings.ExportFormat == "" {
		settings.ExportFormat = export.FormatText
	}
	c := &Console{
		ctx:      ctx,
		svc:      svc,
		renderer: renderer,
		settings: settings,
		out:      &syncWriter{w: out},
	}

	svc.OnTick(c.handleTick)
	svc.OnFinish(c.handleFinish)

	return c
}

// NewReadline creates the line editor used by Run
func NewReadline() (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// Run reads commands from rl until quit, EOF or ctx is done
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, rl *readline.Instance) {
	defer rl.Close()

	c.promptMu.Lock()
	c.setPrompt = func(p string) {
		rl.SetPrompt(p)
		rl.Refresh()
	}
	c.promptMu.Unlock()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Handle(line) {
			cancel()
			return
		}
	}
}

// Handle executes one command line. It returns false when the operator
// asked to quit.
func (c *Console) Handle(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "start", "s":
		c.cmdStart(args)

	case "press", "p":
		c.cmdPress(args)

	case "release", "r":
		c.cmdRelease(args)

	case "stop":
		c.cmdStop()

	case "status", "st":
		c.cmdStatus()

	case "report", "refresh":
		c.cmdReport()

	case "chart":
		c.cmdChart(args)

	case "export", "save":
		c.cmdExport(args)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false

	default:
		if zone, err := domain.ParseZone(cmd); err == nil && len(args) == 0 {
			c.press(zone)
			return true
		}
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	return true
}

func (c *Console) printHelp() {
	fmt.Fprintf(c.out, `
Open Field Commands:
  Trial:
    start <animal-id> [seconds] - Start a trial (default %d seconds)
    stop                        - Stop the trial and show the report
    status                      - Show remaining time and time per area

  Areas:
    press <area>                - Mark the animal in an area (corner, lateral, center)
    <area>                      - Same as press, e.g. "c", "l", "m"
    release [area]              - Mark the animal as out of the held area

  Results:
    report                      - Show the report (provisional while running)
    chart [file.svg]            - Show the time distribution, or save it as SVG
    export [path] [txt|yaml]    - Save the last report (default %s)

    help                        - Show this help
    quit                        - Exit
`, c.settings.DurationSeconds, c.settings.ExportFormat)
}

func (c *Console) cmdStart(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: start <animal-id> [seconds]")
		return
	}

	seconds := c.settings.DurationSeconds
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[len(args)-1]); err == nil {
			seconds = n
			args = args[:len(args)-1]
		}
	}
	subjectID := strings.Join(args, " ")

	if err := c.svc.Start(c.ctx, subjectID, seconds); err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			fmt.Fprintf(c.out, "Error: %s\n", verr)
		case errors.Is(err, domain.ErrSessionRunning):
			fmt.Fprintln(c.out, "Error: a trial is already running, stop it first")
		default:
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		return
	}

	status := c.svc.Status()
	fmt.Fprintf(c.out, "Trial started for %s (%s)\n", status.SubjectID, report.FormatClock(status.Planned))
	c.updatePrompt(c.statusPrompt(status))
}

func (c *Console) cmdPress(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: press <corner|lateral|center>")
		return
	}
	zone, err := domain.ParseZone(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.press(zone)
}

func (c *Console) press(zone domain.Zone) {
	if c.svc.Status().State != domain.SessionStateRunning {
		fmt.Fprintln(c.out, "No trial running. Use 'start <animal-id>' first.")
		return
	}
	if c.svc.Press(zone) {
		fmt.Fprintf(c.out, "In %s\n", c.renderer.ZoneLabel(zone))
	} else {
		fmt.Fprintf(c.out, "Already in %s\n", c.renderer.ZoneLabel(zone))
	}
	status := c.svc.Status()
	c.updatePrompt(c.statusPrompt(status))
}

func (c *Console) cmdRelease(args []string) {
	var (
		zone domain.Zone
		ok   bool
	)
	switch len(args) {
	case 0:
		zone, ok = c.svc.ReleaseActive()
	case 1:
		var err error
		zone, err = domain.ParseZone(args[0])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		ok = c.svc.Release(zone)
	default:
		fmt.Fprintln(c.out, "Usage: release [area]")
		return
	}

	if !ok {
		fmt.Fprintln(c.out, "No area held.")
		return
	}

	status := c.svc.Status()
	fmt.Fprintf(c.out, "Out of %s (%s s)\n", c.renderer.ZoneLabel(zone), report.FormatSeconds(status.Live[zone]))
	c.updatePrompt(c.statusPrompt(status))
}

func (c *Console) cmdStop() {
	if _, ok := c.svc.Stop(true); !ok {
		fmt.Fprintln(c.out, "No trial running.")
	}
}

func (c *Console) cmdStatus() {
	status := c.svc.Status()

	if status.State != domain.SessionStateRunning {
		fmt.Fprintln(c.out, "No trial running.")
		if rep := c.svc.LastReport(); rep != nil {
			fmt.Fprintf(c.out, "Last report: %s (%s)\n", rep.SubjectID, rep.Reason)
		}
		return
	}

	fmt.Fprintf(c.out, "Animal:    %s\n", status.SubjectID)
	fmt.Fprintf(c.out, "Remaining: %s\n", report.FormatClock(status.Remaining))
	if status.Active != nil {
		fmt.Fprintf(c.out, "In area:   %s\n", c.renderer.ZoneLabel(*status.Active))
	} else {
		fmt.Fprintln(c.out, "In area:   -")
	}
	for _, z := range domain.Zones() {
		fmt.Fprintf(c.out, "  %-10s %8s s\n", c.renderer.ZoneLabel(z), report.FormatSeconds(status.Live[z]))
	}
}

func (c *Console) cmdReport() {
	rep, err := c.svc.Snapshot()
	if errors.Is(err, domain.ErrNoReport) {
		fmt.Fprintln(c.out, "No report yet. Start a trial first.")
		return
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(c.out, c.renderer.Render(rep))
}

func (c *Console) cmdChart(args []string) {
	if len(args) > 0 {
		written, err := c.svc.WriteChart(args[0])
		switch {
		case errors.Is(err, domain.ErrNoReport):
			fmt.Fprintln(c.out, "No report to chart. Stop a trial first.")
		case err != nil:
			fmt.Fprintf(c.out, "Error: %v\n", err)
		case !written:
			fmt.Fprintln(c.out, c.renderer.NoData())
		default:
			fmt.Fprintf(c.out, "Chart saved to %s\n", args[0])
		}
		return
	}

	rep, err := c.svc.Snapshot()
	if err != nil {
		fmt.Fprintln(c.out, "No report to chart. Start a trial first.")
		return
	}
	c.printChart(rep)
}

func (c *Console) cmdExport(args []string) {
	format := c.settings.ExportFormat
	if n := len(args); n > 0 {
		if f, err := export.ParseFormat(args[n-1]); err == nil {
			format = f
			args = args[:n-1]
		} else if n > 1 {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
	}
	if len(args) > 1 {
		fmt.Fprintln(c.out, "Usage: export [path] [txt|yaml]")
		return
	}

	var path string
	if len(args) == 1 {
		path = args[0]
	}

	result, err := c.svc.Export(path, format)
	if err != nil {
		var ioErr *domain.IOError
		switch {
		case errors.Is(err, domain.ErrNoReport):
			fmt.Fprintln(c.out, "No report to export. Stop a trial first.")
		case errors.As(err, &ioErr):
			fmt.Fprintf(c.out, "Error: %v\nThe report is kept, try another path.\n", ioErr)
		default:
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
		return
	}

	fmt.Fprintf(c.out, "Report saved to %s\n", result.Path)
	if result.ChartPath != "" {
		fmt.Fprintf(c.out, "Chart saved to %s\n", result.ChartPath)
	}
}

func (c *Console) printChart(rep *domain.Report) {
	chart, err := c.renderer.Breakdown(rep)
	if errors.Is(err, report.ErrNoChartData) {
		fmt.Fprintln(c.out, c.renderer.NoData())
		return
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(c.out, chart.Bars(barWidth))
}

func (c *Console) handleTick(status domain.TickStatus) {
	var live time.Duration
	if status.Active != nil {
		live = status.LiveTime(*status.Active)
	}
	c.updatePrompt(c.tickPrompt(status.Remaining, status.Active, live))
}

func (c *Console) handleFinish(rep *domain.Report) {
	c.updatePrompt(Prompt)

	if rep.Reason == domain.StopReasonExpired {
		fmt.Fprintln(c.out, "\nTime is up, trial finished.")
	} else {
		fmt.Fprintln(c.out, "Trial finished.")
	}
	fmt.Fprint(c.out, c.renderer.Render(rep))
	c.printChart(rep)
}

func (c *Console) statusPrompt(status service.Status) string {
	var live time.Duration
	if status.Active != nil {
		live = status.Live[*status.Active]
	}
	return c.tickPrompt(status.Remaining, status.Active, live)
}

// tickPrompt renders the running prompt, e.g. "[04:59 Center 1.20s] openfield> "
func (c *Console) tickPrompt(remaining time.Duration, active *domain.Zone, live time.Duration) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(report.FormatClock(remaining))
	if active != nil {
		fmt.Fprintf(&b, " %s %ss", c.renderer.ZoneLabel(*active), report.FormatSeconds(live))
	}
	b.WriteString("] ")
	b.WriteString(Prompt)
	return b.String()
}

func (c *Console) updatePrompt(p string) {
	c.promptMu.Lock()
	defer c.promptMu.Unlock()
	if c.setPrompt != nil {
		c.setPrompt(p)
	}
}

// syncWriter serializes writes from the console and the tick loop
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
