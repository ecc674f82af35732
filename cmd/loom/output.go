package main

import (
	"fmt"
	"io"
	"os"
)

// CLI feedback goes to stderr so stdout stays clean for the JSON and CSV
// output callers may pipe. Tests swap feedbackW to capture it.
var feedbackW io.Writer = os.Stderr

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

// statusLabelWidth lines up the value column across consecutive printStatus
// lines (feature vectors, ledger summaries).
const statusLabelWidth = 18

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + ansiReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(feedbackW, colorize(ansiGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(feedbackW, colorize(ansiRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(feedbackW, colorize(ansiYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(feedbackW, colorize(ansiCyan, "→ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	// Pad before colorizing: escape codes must not count toward the width.
	padded := fmt.Sprintf("%-*s", statusLabelWidth, label+":")
	fmt.Fprintf(feedbackW, "  %s %s\n", colorize(ansiBold, padded), fmt.Sprintf(format, args...))
}
