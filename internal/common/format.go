package common

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultWidth = 80
	WideWidth    = 110
)

// PrintHeader prints a report title between two rules
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", width))
}

// PrintFooter prints a summary line between two rules
func PrintFooter(summary string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(summary)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// PrintSection opens a boxed section for one account
func PrintSection(title string, width int) {
	fmt.Printf("\n┌─ %s\n", title)
	fmt.Println("├" + strings.Repeat("─", width-2))
}

// BoxPrefix returns the box-drawing prefix for a list item
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// ShortId truncates long identifiers for tabular output
func ShortId(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

// FormatTime renders an optional timestamp, "-" when unset
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
