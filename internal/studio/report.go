package studio

import (
	"fmt"
	"strings"
)

// Summary renders the recorded statuses grouped by source, in the order the
// sources were processed, followed by totals.
func (o *Orchestrator) Summary() string {
	return Summarize(o.Statuses())
}

// Summarize renders statuses as a plain-text report.
func Summarize(statuses []MaterialStatus) string {
	var b strings.Builder
	b.WriteString("Material generation summary\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	fmt.Fprintf(&b, "Total operations: %d\n", len(statuses))

	var order []string
	bySource := make(map[string][]MaterialStatus)
	for _, st := range statuses {
		if _, ok := bySource[st.Source]; !ok {
			order = append(order, st.Source)
		}
		bySource[st.Source] = append(bySource[st.Source], st)
	}

	started := 0
	for _, src := range order {
		fmt.Fprintf(&b, "\n%s\n", src)
		for _, st := range bySource[src] {
			mark := "✗"
			if st.OK() {
				mark = "✓"
				started++
			}
			fmt.Fprintf(&b, "  %s %s", mark, st.Type)
			if st.Error != "" {
				fmt.Fprintf(&b, ": %s", st.Error)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n" + strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "Started: %d\n", started)
	fmt.Fprintf(&b, "Failed:  %d\n", len(statuses)-started)
	fmt.Fprintf(&b, "Total:   %d\n", len(statuses))
	return b.String()
}
