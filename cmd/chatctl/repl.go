package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/arnobt78/multimodel-chat/services/inference"
	"github.com/arnobt78/multimodel-chat/services/providers"
	"github.com/arnobt78/multimodel-chat/services/routing"
)

// chatService is the subset of inference.Service used by the REPL
type chatService interface {
	GetChatResponse(ctx context.Context, req inference.ChatRequest) inference.ChatResponse
}

// statusLister is the subset of routing.Orchestrator used by /providers
type statusLister interface {
	Status(now time.Time) []routing.BackendStatus
	Now() time.Time
}

// renderer turns markdown into terminal output
type renderer func(markdown string) (string, error)

type repl struct {
	in        io.Reader
	out       io.Writer
	chat      chatService
	lister    statusLister
	render    renderer
	provider  string
	sessionID string
}

const helpText = `Commands:
  /use <backend>  pin a backend (groq, gemini, openrouter, huggingface, openai)
  /auto           let the gateway pick a backend
  /providers      list backends and their availability
  /help           show this help
  /quit           exit`

// run reads lines until EOF, /quit or ctx is done
func (r *repl) run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprintf(r.out, "%s: ", color.CyanString("You%s", r.modeSuffix()))
		if !scanner.Scan() {
			fmt.Fprintln(r.out, "Exiting...")
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}

		r.ask(ctx, line)
	}
}

func (r *repl) modeSuffix() string {
	if r.provider == "" {
		return ""
	}
	return " @" + r.provider
}

// command handles a slash command and reports whether to exit
func (r *repl) command(line string) bool {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/auto":
		r.provider = ""
		fmt.Fprintln(r.out, color.GreenString("automatic backend selection"))
	case "/use":
		if len(fields) != 2 {
			fmt.Fprintln(r.out, color.YellowString("usage: /use <backend>"))
			return false
		}
		id, err := providers.ParseBackendID(fields[1])
		if err != nil {
			fmt.Fprintln(r.out, color.RedString("%v", err))
			return false
		}
		r.provider = string(id)
		fmt.Fprintln(r.out, color.GreenString("using %s", providers.DefaultDisplayName(id)))
	case "/providers":
		r.printProviders()
	default:
		fmt.Fprintln(r.out, color.YellowString("unknown command %s, try /help", fields[0]))
	}
	return false
}

func (r *repl) printProviders() {
	now := r.lister.Now()
	for _, s := range r.lister.Status(now) {
		state := color.GreenString("available")
		switch {
		case !s.Enabled:
			state = color.HiBlackString("disabled")
		case !s.Available:
			state = color.HiBlackString("not configured")
		case s.Suppressed:
			state = color.YellowString("cooling down for %s", s.SuppressedUntil.Sub(now).Round(time.Second))
		}
		fmt.Fprintf(r.out, "  %-12s %-16s %s\n", s.ID, s.DisplayName, state)
	}
}

func (r *repl) ask(ctx context.Context, message string) {
	resp := r.chat.GetChatResponse(ctx, inference.ChatRequest{
		Message:   message,
		Provider:  r.provider,
		SessionID: r.sessionID,
	})

	if !resp.Success {
		fmt.Fprintf(r.out, "%s: %s\n", color.RedString("%s", resp.Provider), color.RedString("%s", resp.Error))
		return
	}

	label := color.MagentaString("%s", resp.Provider)
	if resp.Degraded {
		label += " " + color.YellowString("(degraded)")
	}
	fmt.Fprintf(r.out, "%s:\n", label)

	out := resp.Content
	if r.render != nil {
		if rendered, err := r.render(resp.Content); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(r.out, strings.TrimRight(out, "\n"))
}
