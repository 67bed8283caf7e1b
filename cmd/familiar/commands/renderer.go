package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/familiar-ai/familiar/internal/approve"
	"github.com/familiar-ai/familiar/internal/sidecar"
	"github.com/familiar-ai/familiar/pkg/types"
)

// renderer prints engine output to the terminal.
type renderer struct {
	dim    *color.Color
	accent *color.Color
	warn   *color.Color
	fail   *color.Color
}

func newRenderer() *renderer {
	return &renderer{
		dim:    color.New(color.FgHiBlack),
		accent: color.New(color.FgGreen, color.Bold),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed),
	}
}

func (r *renderer) banner(url string) {
	fmt.Fprintln(os.Stderr, r.dim.Sprintf("Connected to %s", url))
}

func (r *renderer) info(msg string) {
	fmt.Println(r.dim.Sprint(msg))
}

func (r *renderer) errorLine(msg string) {
	fmt.Fprintln(os.Stderr, r.fail.Sprintf("✗ %s", msg))
}

func (r *renderer) assistantPrefix() {
	fmt.Print(r.accent.Sprint("assistant › "))
}

// delta prints revealed text without a trailing newline; the reveal
// buffer controls pacing, the renderer just echoes.
func (r *renderer) delta(text string) {
	fmt.Print(text)
}

func (r *renderer) transcript(text string) {
	if text == "" {
		return
	}
	r.assistantPrefix()
	fmt.Println(text)
}

func (r *renderer) tool(summary *types.ToolSummary) {
	line := "→ tool finished"
	if summary.Path != "" {
		line = fmt.Sprintf("→ tool touched %s", summary.Path)
	}
	if summary.IsError {
		fmt.Println()
		fmt.Println(r.fail.Sprint(line + " (failed)"))
		return
	}
	fmt.Println()
	fmt.Println(r.warn.Sprint(line))
	if summary.Snippet != "" {
		fmt.Println(r.dim.Sprint(indent(summary.Snippet, "  ")))
	}
}

func (r *renderer) usageLine(last types.UsageTotals) {
	if !last.HasData() {
		return
	}
	fmt.Println()
	fmt.Println(r.dim.Sprintf("%d tokens in, %d out, %.4f %s",
		last.InputTokens, last.OutputTokens, last.Cost, currencyOrDefault(last.Currency)))
}

func (r *renderer) usageSummary(session types.UsageTotals, last *types.UsageTotals) {
	if !session.HasData() {
		r.info("No usage recorded yet.")
		return
	}
	fmt.Println(r.dim.Sprintf("Session: %d tokens in, %d out, %.4f %s",
		session.InputTokens, session.OutputTokens, session.Cost, currencyOrDefault(session.Currency)))
	if last != nil && last.HasData() {
		fmt.Println(r.dim.Sprintf("Last turn: %d in, %d out", last.InputTokens, last.OutputTokens))
	}
}

func (r *renderer) suggestions(items []string) {
	r.info("Try asking:")
	for _, s := range items {
		fmt.Println(r.dim.Sprintf("  • %s", s))
	}
}

func (r *renderer) settings(s types.Settings) {
	mode := s.AuthMode
	if mode == "" {
		mode = "api_key"
	}
	fmt.Println(r.dim.Sprintf("Auth mode: %s", mode))
	fmt.Println(r.dim.Sprintf("Authenticated: %v", s.IsAuthenticated()))
	if label := s.ConnectedAccountLabel(); label != "" {
		fmt.Println(r.dim.Sprintf("Account: %s", label))
	}
	if s.Workspace != "" {
		fmt.Println(r.dim.Sprintf("Workspace: %s", s.Workspace))
	}
	for tool, patterns := range s.AlwaysAllow {
		fmt.Println(r.dim.Sprintf("Always allow %s: %s", tool, strings.Join(patterns, ", ")))
	}
}

// askPermission renders a pending approval and reads the user's answer.
func (r *renderer) askPermission(reader *bufio.Reader, req approve.Request) (decision string, remember bool) {
	fmt.Println()
	fmt.Println(r.warn.Sprintf("The assistant wants to use %s", req.ShortSummary()))
	if req.Preview != "" {
		fmt.Println(r.dim.Sprint(indent(req.Preview, "  ")))
	}
	if req.Diff != "" {
		fmt.Println(r.dim.Sprint(indent(req.Diff, "  ")))
	}

	for {
		fmt.Print(r.warn.Sprint("Allow? [y]es / [n]o / [a]lways: "))
		line, err := reader.ReadString('\n')
		if err != nil {
			return sidecar.DecisionDeny, false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return sidecar.DecisionAllow, false
		case "a", "always":
			return sidecar.DecisionAllow, true
		case "n", "no":
			return sidecar.DecisionDeny, false
		}
	}
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
