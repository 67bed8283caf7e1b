package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/familiar-ai/familiar/internal/auth"
	"github.com/familiar-ai/familiar/internal/config"
	"github.com/familiar-ai/familiar/internal/engine"
	"github.com/familiar-ai/familiar/internal/event"
	"github.com/familiar-ai/familiar/internal/logging"
	"github.com/familiar-ai/familiar/internal/sidecar"
	"github.com/familiar-ai/familiar/internal/store"
	"github.com/familiar-ai/familiar/internal/zerostate"
)

const chatHelp = `Commands:
  /help      Show this help
  /resume    Restore the previous archived conversation
  /usage     Show token usage for this session
  /settings  Show backend settings
  /login     Sign in with claude.ai
  /exit      Leave the chat

End a line with \ to continue on the next line.
Press Ctrl+C during a reply to stop it.`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := newClient()

	if err := client.WaitUntilReady(ctx, 15*time.Second); err != nil {
		return fmt.Errorf("backend at %s is not ready: %w", client.BaseURL(), err)
	}

	bus := event.NewBus()
	defer bus.Close()

	eng := engine.New(client, store.New(cfg.StatePath), bus, engine.Config{
		DisableTypewriter:   cfg.DisableTypewriter,
		InactivityThreshold: cfg.InactivityThreshold(),
	})

	if settings, err := client.FetchSettings(ctx); err == nil {
		eng.SetSettings(settings)
	} else {
		logging.Warn().Err(err).Msg("Could not fetch settings; always-allow grants inactive")
	}

	// Hot-reload the log level on config changes; everything else needs a
	// restart.
	if watcher, err := config.NewWatcher(func(c *config.Config) {
		logging.Init(logging.Config{Level: logging.ParseLevel(c.LogLevel), Pretty: c.PrettyLogs})
	}); err == nil && watcher != nil {
		watcher.Start()
		defer watcher.Stop()
	}

	r := newRenderer()
	r.banner(client.BaseURL())

	suggestions := zerostate.NewCache(client.FetchSuggestions)
	go suggestions.Prewarm(context.Background())

	if eng.ResumePrevious() {
		r.info("Restored your previous conversation.")
		r.transcript(eng.Transcript())
	} else if s := suggestions.Get(ctx); len(s) > 0 {
		r.suggestions(s)
	}

	events := make(chan event.Event, 256)
	bus.SubscribeAll(func(e event.Event) { events <- e })

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	reader := bufio.NewReader(os.Stdin)
	for {
		eng.EvaluateInactivityReset()
		drain(events)

		line, err := readMultiline(reader)
		if err != nil {
			return nil // EOF ends the session
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "/") {
			if quit := runChatCommand(ctx, trimmed, eng, client, r); quit {
				return nil
			}
			continue
		}

		if preview := eng.HandlePaste(trimmed); preview != "" {
			r.info("Sending " + preview)
		}
		if err := eng.Submit(ctx, trimmed); err != nil {
			continue // the engine already surfaced the error
		}
		followTurn(ctx, eng, events, interrupts, reader, r)
	}
}

// followTurn renders one streaming turn, answering permission prompts
// inline, until the stream state drops back to idle.
func followTurn(ctx context.Context, eng *engine.Engine, events <-chan event.Event, interrupts <-chan os.Signal, reader *bufio.Reader, r *renderer) {
	started := false
	for {
		select {
		case <-interrupts:
			eng.Cancel()
			r.info("\nStopped.")
			return

		case e := <-events:
			switch e.Type {
			case event.TranscriptUpdated:
				data := e.Data.(event.TranscriptData)
				if data.Delta == "" {
					continue
				}
				if !started {
					r.assistantPrefix()
					started = true
				}
				r.delta(data.Delta)

			case event.ToolSummaryUpdated:
				if data := e.Data.(event.ToolSummaryData); data.Summary != nil {
					r.tool(data.Summary)
				}

			case event.PermissionRequested:
				req := e.Data.(event.PermissionData).Request
				decision, remember := r.askPermission(reader, req)
				if err := eng.RespondToPermission(ctx, req, decision, remember); err != nil {
					r.errorLine(fmt.Sprintf("Could not answer: %v", err))
				}

			case event.SessionError:
				r.errorLine(e.Data.(event.ErrorData).Message)

			case event.UsageUpdated:
				data := e.Data.(event.UsageData)
				r.usageLine(data.LastTurn)

			case event.StreamStateChanged:
				if !e.Data.(event.StreamStateData).Streaming {
					if started {
						fmt.Println()
					}
					return
				}
			}
		}
	}
}

// runChatCommand handles /-commands; returns true when the REPL should
// exit.
func runChatCommand(ctx context.Context, input string, eng *engine.Engine, client *sidecar.Client, r *renderer) bool {
	switch strings.Fields(input)[0] {
	case "/exit", "/quit":
		return true
	case "/help":
		r.info(chatHelp)
	case "/resume":
		if eng.ResumePrevious() {
			r.info("Restored your previous conversation.")
			r.transcript(eng.Transcript())
		} else {
			r.info("Nothing to resume.")
		}
	case "/usage":
		r.usageSummary(eng.Usage(), eng.LastUsage())
	case "/settings":
		settings, err := client.FetchSettings(ctx)
		if err != nil {
			r.errorLine(fmt.Sprintf("Could not fetch settings: %v", err))
			break
		}
		r.settings(settings)
		eng.SetSettings(settings)
	case "/login":
		coord := auth.NewCoordinator(client)
		if err := runLoginFlow(ctx, coord, r); err != nil {
			r.errorLine(err.Error())
		}
	default:
		r.info("Unknown command.\n" + chatHelp)
	}
	return false
}

// readMultiline reads one logical input line; a trailing backslash
// continues onto the next line.
func readMultiline(reader *bufio.Reader) (string, error) {
	var lines []string
	for {
		prompt := "you › "
		if len(lines) > 0 {
			prompt = "  ... "
		}
		fmt.Print(prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			if len(lines) == 0 {
				return "", err
			}
			return strings.Join(lines, "\n"), nil
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasSuffix(line, "\\") {
			lines = append(lines, strings.TrimSuffix(line, "\\"))
			continue
		}
		lines = append(lines, line)
		return strings.Join(lines, "\n"), nil
	}
}

// drain discards stale events from completed turns.
func drain(events <-chan event.Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}
