package output

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/ring-scanner/internal/types"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var (
	bold    = color.New(color.Bold)
	dim     = color.New(color.Faint)
	blue    = color.New(color.FgBlue)
	yellow  = color.New(color.FgYellow)
	green   = color.New(color.FgGreen)
	cyan    = color.New(color.FgCyan)
	red     = color.New(color.FgRed)
	magenta = color.New(color.FgMagenta)
)

// HumanReporter prints a coloured per-target summary for each cycle.
// Quiet suppresses the banner, header and waiting messages but not summaries.
type HumanReporter struct {
	w     io.Writer
	quiet bool
	mu    sync.Mutex
}

func NewHumanReporter(w io.Writer, quiet bool) *HumanReporter {
	return &HumanReporter{w: w, quiet: quiet}
}

// PrintBanner prints the startup banner
func (h *HumanReporter) PrintBanner() {
	if h.quiet {
		return
	}
	fig := figure.NewFigure("RING", "doom", true)
	fmt.Fprintln(h.w, red.Sprint(strings.Join(fig.Slicify(), "\n")))
}

// PrintHeader announces the hosts, ports and ICMP setting of the run
func (h *HumanReporter) PrintHeader(hosts []string, ports []uint16, ping bool) {
	if h.quiet {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s Hosts: [%s]", bold.Sprint("🔍 Scanning"), green.Sprint(strings.Join(hosts, ", ")))
	if len(ports) > 0 {
		portStrings := make([]string, len(ports))
		for i, p := range ports {
			portStrings[i] = strconv.Itoa(int(p))
		}
		fmt.Fprintf(&b, ", Ports: [%s]", yellow.Sprint(strings.Join(portStrings, ", ")))
	}
	if ping {
		b.WriteString(magenta.Sprint(", ICMP Ping: enabled"))
	}
	fmt.Fprintln(h.w, b.String())
	fmt.Fprintln(h.w, dim.Sprint(rule))
}

func (h *HumanReporter) Report(_ context.Context, report *types.ScanReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	b.WriteString("\n📊 Summary\n")
	b.WriteString(dim.Sprint(rule))
	b.WriteByte('\n')

	for _, s := range report.Results {
		b.WriteString(formatSummary(s))
		b.WriteByte('\n')
	}

	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *HumanReporter) Waiting(interval time.Duration) {
	if h.quiet {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.w, "\n⏱️  Waiting %s before next scan...\n\n", formatInterval(interval))
}

func formatSummary(s types.TargetSummary) string {
	icon := "❌"
	if s.Status == types.StatusUp {
		icon = "✅"
	}

	var target string
	if s.Port != nil {
		host := s.Host
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		target = blue.Sprint(host) + ":" + yellow.Sprint(*s.Port)
	} else {
		target = blue.Sprint(s.Host) + " (ICMP)"
	}

	line := fmt.Sprintf("%s %s → %d/%d successful", icon, target, s.Successful, s.Attempts)
	if s.AvgResponseTimeMs != nil {
		line += fmt.Sprintf(" (Avg: %.2f ms)", *s.AvgResponseTimeMs)
	}
	line += fmt.Sprintf(" [%s]", cyan.Sprint(s.TestType))
	if s.Error != nil {
		line += fmt.Sprintf(" (%s)", red.Sprint(*s.Error))
	}
	return line
}

func formatInterval(d time.Duration) string {
	seconds := int(d.Round(time.Second) / time.Second)
	if seconds == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", seconds)
}
