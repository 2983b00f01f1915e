package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

const detailWidth = 60

// Printer renders the end-of-run summary. Colors follow the writer's
// terminal capabilities, so redirected output stays plain.
type Printer struct {
	out   io.Writer
	ok    lipgloss.Style
	fail  lipgloss.Style
	muted lipgloss.Style
}

func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:   out,
		ok:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#2ECC40")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF4136")),
		muted: r.NewStyle().Foreground(lipgloss.Color("#A6ADC8")),
	}
}

// Summary prints one row per processed URL and the batch totals.
func (p *Printer) Summary(c Counters) {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Status", "URL", "Records", "Detail"})
	for i, u := range c.URLs {
		status := p.ok.Render("OK")
		detail := ""
		switch {
		case u.Err != "":
			status = p.fail.Render("FAIL")
			detail = truncateText(u.Err, detailWidth)
		case u.Succeeded < u.Records:
			status = p.fail.Render("PARTIAL")
			detail = fmt.Sprintf("%d of %d items failed", u.Records-u.Succeeded, u.Records)
		}
		t.AppendRow(table.Row{i + 1, status, u.URL, strconv.Itoa(u.Succeeded) + "/" + strconv.Itoa(u.Records), detail})
	}
	t.AppendFooter(table.Row{"", "", "TOTAL", c.Processed, ""})
	t.Render()

	line := fmt.Sprintf("Summary: %s %d | %s %d | URLS %d",
		p.ok.Render("OK"), c.Succeeded, p.fail.Render("FAIL"), c.Failed, c.Processed)
	if c.Cancelled {
		line += " " + p.muted.Render("(interrupted)")
	}
	fmt.Fprintln(p.out, line)
}

func truncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}
