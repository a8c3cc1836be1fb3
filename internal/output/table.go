package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/jbweber/k93s/internal/fleet"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

// TableFormatter formats a fleet as a human-readable table.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
	Styled    bool
}

// FormatFleet formats the fleet as a table, one row per VM.
func (f *TableFormatter) FormatFleet(fl fleet.Fleet) (string, error) {
	if len(fl) == 0 {
		return "No VMs planned\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tROLE\tIP\tDISTRO\tVCPUS\tMEMORY\tDISK")
	}

	for _, e := range Entries(fl) {
		ip := e.IPv4
		if ip == "" {
			ip = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d MiB\t%d GB\n",
			e.Name, e.Role, ip, e.Distro, e.VCPUs, e.MemoryMB, e.RootDiskSize)
	}

	_ = w.Flush()
	out := buf.String()

	// styled after alignment so escape codes do not skew column widths
	if f.Styled && !f.NoHeaders {
		header, rest, _ := strings.Cut(out, "\n")
		out = headerStyle.Render(header) + "\n" + rest
	}
	return out, nil
}
