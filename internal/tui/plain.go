package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"orchat/internal/turn"
)

// RunPlain is the line-oriented fallback for non-TTY sessions: one prompt per
// turn, streamed output printed as it settles, interrupts answered inline.
func RunPlain(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.Client == nil || opts.Controller == nil {
		return errors.New("plain mode requires a client and a controller")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := opts.Controller

	fmt.Fprintf(out, "orchat %s thread %s\n", statusLine(c.Phase()), c.ThreadID())
	printReplayedHistory(ctx, out, opts)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		if err := c.StartTurn(ctx, text); err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		if err := followTurn(ctx, scanner, out, c); err != nil {
			return err
		}
	}
}

// RunOnce submits a single question (e.g. a transcribed voice prompt) and
// follows it to completion in plain-mode output, answering interrupts from in.
func RunOnce(ctx context.Context, in io.Reader, out io.Writer, opts Options, question string) error {
	if opts.Client == nil || opts.Controller == nil {
		return errors.New("plain mode requires a client and a controller")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := opts.Controller
	if err := c.StartTurn(ctx, question); err != nil {
		return err
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return followTurn(ctx, scanner, out, c)
}

func printReplayedHistory(ctx context.Context, out io.Writer, opts Options) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	msgs, err := opts.Client.History(reqCtx, opts.Controller.ThreadID())
	if err != nil || len(msgs) == 0 {
		return
	}
	for _, rm := range turn.ReplayHistory(msgs) {
		label := "AI"
		if rm.Role == "user" {
			label = "You"
		}
		fmt.Fprintf(out, "%s: %s\n", label, rm.Content)
	}
	fmt.Fprintln(out)
}

// followTurn drains updates until the turn settles, pausing at interrupts to
// read the human's decision from the same input stream.
func followTurn(ctx context.Context, scanner *bufio.Scanner, out io.Writer, c *turn.Controller) error {
	printedSteps := 0
	for u := range c.Updates() {
		if printedSteps < len(u.Snapshot.ProcessLog) {
			for _, step := range u.Snapshot.ProcessLog[printedSteps:] {
				fmt.Fprintln(out, "  •", step)
			}
			printedSteps = len(u.Snapshot.ProcessLog)
		}

		switch u.Phase {
		case turn.PhaseCompleted:
			fmt.Fprintln(out, "AI:", u.Snapshot.Response)
			return nil
		case turn.PhaseFailed:
			fmt.Fprintln(out, "AI:", u.Snapshot.Response)
			if u.Err != nil {
				fmt.Fprintln(out, "error:", u.Err)
			}
			return nil
		case turn.PhaseAborted:
			fmt.Fprintln(out, "(interrupted)")
			return nil
		case turn.PhaseAwaitingDecision:
			if p := u.Snapshot.Interrupt; p != nil {
				fmt.Fprintln(out, "REVIEW:", p.Content)
			}
			fmt.Fprint(out, "approve? [Enter approves, text requests changes] ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			decision := strings.TrimSpace(scanner.Text())
			var err error
			if decision == "" {
				err = c.Approve(ctx)
			} else {
				err = c.RequestChanges(ctx, decision)
			}
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				return nil
			}
		}
	}
	return nil
}
