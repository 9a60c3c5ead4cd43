package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/lexiqai/voice-coach/internal/audio"
	"github.com/lexiqai/voice-coach/internal/conversation"
	"github.com/lexiqai/voice-coach/internal/playback"
	"github.com/lexiqai/voice-coach/internal/resilience"
	"github.com/lexiqai/voice-coach/internal/session"
	"github.com/lexiqai/voice-coach/internal/transcript"
)

// console serializes writes from the session, conversation and command
// goroutines.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	fmt.Fprintf(c.w, format, args...)
	c.mu.Unlock()
}

func (c *console) turn(entries []transcript.Entry) {
	for _, e := range entries {
		who := "You"
		if e.Role == transcript.RoleAgent {
			who = "Agent"
		}
		c.printf("%s: %s\n", who, e.Text)
	}
}

func (c *console) event(ev session.Event) {
	switch ev.Kind {
	case session.EventState:
		switch ev.State {
		case session.StateConnecting:
			c.printf("… connecting\n")
		case session.StateActive:
			c.printf("● connected, start speaking\n")
		case session.StateClosed:
			c.printf("○ session closed\n")
		case session.StateError:
			c.printf("! %s\n", ev.Message)
		}
	case session.EventUserTalking:
		if ev.Talking {
			c.printf("  (listening)\n")
		}
	case session.EventAgentSpeaking:
		if !ev.Talking {
			c.printf("  (your turn)\n")
		}
	}
}

func (c *console) feedback(f conversation.Feedback) {
	switch f.Kind {
	case conversation.FeedbackCorrection:
		line := "  ✎ " + f.Correction.Corrected
		if f.Correction.Explanation != "" {
			line += " (" + f.Correction.Explanation + ")"
		}
		c.printf("%s\n", line)
	case conversation.FeedbackChallenge:
		c.printf("  ★ %d/100 %s\n", f.Challenge.Score, f.Challenge.Feedback)
		if f.Challenge.Completed {
			c.printf("  ★ goal reached\n")
		}
	}
}

// watch prints session events and collaborator feedback until ctx is done.
func (c *console) watch(ctx context.Context, sess *session.Session, conv *conversation.Conversation) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sess.Events():
			c.event(ev)
		case f := <-conv.Feedback():
			c.feedback(f)
		}
	}
}

func (c *console) status(st session.Status, breakers []*resilience.CircuitBreaker) {
	c.printf("state=%s session=%s talking=%v threshold=%.4f gain=%.2f playing=%d paused=%v\n",
		st.State, st.SessionID, st.UserTalking, st.Threshold, st.InputGain, st.Playback.Active, st.Playback.Paused)
	if st.Heard != "" {
		c.printf("heard so far: %s\n", strings.TrimSpace(st.Heard))
	}
	for _, cb := range breakers {
		state, requests, failures, rate := cb.GetStats()
		c.printf("%s: %s, %d/%d failed (%.0f%%)\n", cb.Name(), state, failures, requests, rate)
	}
}

const helpText = `Commands:
  +          raise the speech threshold
  -          lower the speech threshold
  g <n>      set the input gain
  p          pause or resume the agent's voice
  v <r> [p]  set the agent's speech rate and pitch factor
  r          restart the session
  s          show status
  q          quit
`

type commands struct {
	vad      *audio.VADDetector
	player   *playback.Scheduler
	session  *session.Session
	breakers []*resilience.CircuitBreaker
	step     float64
	restart  func(ctx context.Context)
}

// commandLoop reads commands from r until quit, end of input or ctx is done.
func commandLoop(ctx context.Context, r io.Reader, out *console, cmds commands) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "+":
			cmds.vad.SetThreshold(cmds.vad.Threshold() + cmds.step)
			out.printf("threshold %.4f\n", cmds.vad.Threshold())
		case "-":
			cmds.vad.SetThreshold(max(cmds.vad.Threshold()-cmds.step, 0))
			out.printf("threshold %.4f\n", cmds.vad.Threshold())
		case "g":
			if len(fields) != 2 {
				out.printf("usage: g <gain>\n")
				continue
			}
			g, err := strconv.ParseFloat(fields[1], 64)
			if err != nil || g <= 0 {
				out.printf("gain must be a positive number\n")
				continue
			}
			cmds.session.SetInputGain(g)
			out.printf("gain %.2f\n", cmds.session.InputGain())
		case "p":
			if cmds.player.TogglePause() {
				out.printf("playback paused\n")
			} else {
				out.printf("playback resumed\n")
			}
		case "v":
			rates, ok := parseRates(fields[1:])
			if !ok {
				out.printf("usage: v <speech rate> [pitch factor]\n")
				continue
			}
			cmds.player.SetRates(rates[0], rates[1])
			snap := cmds.player.Snapshot()
			out.printf("speech rate %.2f pitch %.2f\n", snap.SpeechRate, snap.PitchFactor)
		case "r":
			cmds.restart(ctx)
		case "s":
			out.status(cmds.session.Status(), cmds.breakers)
		case "q", "quit", "exit":
			return nil
		case "h", "help", "?":
			out.printf("%s", helpText)
		default:
			out.printf("unknown command %q, type h for help\n", fields[0])
		}
	}
}

// parseRates reads a speech rate and an optional pitch factor. A missing
// pitch is returned as 0, which SetRates leaves unchanged.
func parseRates(args []string) ([2]float64, bool) {
	var rates [2]float64
	if len(args) < 1 || len(args) > 2 {
		return rates, false
	}
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil || v <= 0 {
			return rates, false
		}
		rates[i] = v
	}
	return rates, true
}
