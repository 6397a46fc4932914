package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/arnavsurve/agentblocks/pkg/engine"
	"github.com/fatih/color"
)

var eventColors = map[engine.EventKind]*color.Color{
	engine.KindLog:          color.New(color.FgWhite),
	engine.KindInfo:         color.New(color.FgCyan),
	engine.KindWarning:      color.New(color.FgYellow),
	engine.KindError:        color.New(color.FgRed, color.Bold),
	engine.KindSuccess:      color.New(color.FgGreen),
	engine.KindResult:       color.New(color.FgGreen, color.Bold),
	engine.KindEmailPreview: color.New(color.FgBlue),
	engine.KindEmailSending: color.New(color.FgMagenta),
	engine.KindEmailSent:    color.New(color.FgGreen),
	engine.KindTestMode:     color.New(color.FgYellow, color.Bold),
	engine.KindAIResult:     color.New(color.FgHiCyan),
}

// eventRenderer prints output events as the run produces them. The
// listener receives the whole log each time, so only the new tail is
// printed.
type eventRenderer struct {
	out  io.Writer
	seen int
}

func newEventRenderer(out io.Writer) *eventRenderer {
	return &eventRenderer{out: out}
}

func (r *eventRenderer) listen(events []engine.OutputEvent) {
	for _, ev := range events[r.seen:] {
		r.render(ev)
	}
	r.seen = len(events)
}

func (r *eventRenderer) render(ev engine.OutputEvent) {
	c, ok := eventColors[ev.Kind]
	if !ok {
		c = color.New(color.FgWhite)
	}

	label := c.Sprintf("%-13s", strings.ToUpper(string(ev.Kind)))
	ts := color.New(color.Faint).Sprint(ev.Timestamp.Format("15:04:05.000"))

	lines := strings.Split(ev.Content, "\n")
	fmt.Fprintf(r.out, "%s %s %s\n", ts, label, lines[0])
	indent := strings.Repeat(" ", 12+1+13+1)
	for _, line := range lines[1:] {
		fmt.Fprintf(r.out, "%s%s\n", indent, line)
	}
}
