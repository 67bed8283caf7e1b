package approve

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// BashCommand is one parsed shell invocation from a Bash tool request.
type BashCommand struct {
	Name       string
	Subcommand string
	Args       []string
}

// String renders the command for display, e.g. "git commit".
func (c BashCommand) String() string {
	if c.Subcommand != "" {
		return c.Name + " " + c.Subcommand
	}
	return c.Name
}

// ParseBashCommand parses a shell command string into its constituent
// invocations, so an approval prompt can name every command a compound
// line would run, not just the first.
func ParseBashCommand(command string) ([]BashCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, err
	}

	var commands []BashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *BashCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &BashCommand{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)
		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}
	return cmd
}

// wordToString flattens a shell word; expansions become placeholders since
// their value is unknowable client-side.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// CommandSummary lists the distinct command names in a Bash request, in
// order of first appearance, for the approval prompt header. Unparseable
// input falls back to the raw command string.
func CommandSummary(command string) []string {
	commands, err := ParseBashCommand(command)
	if err != nil || len(commands) == 0 {
		return []string{command}
	}

	seen := make(map[string]bool, len(commands))
	var names []string
	for _, c := range commands {
		if !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	return names
}
