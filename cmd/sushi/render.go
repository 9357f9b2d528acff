package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jason-s-yu/sushi/internal/session"
	"github.com/jason-s-yu/sushi/internal/stack"
)

// digest summarizes everything render shows except the ticking clock, so the
// screen is redrawn on real changes only.
func digest(v session.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%d|%d|%t|%t|%t|%t|%s", v.SessionID, v.State, v.Round, v.Selected,
		v.CanSubmit, v.Submitting, v.Submitted, v.Connected, v.Banner)
	for _, h := range v.Hand {
		fmt.Fprintf(&b, "|h%d:%d", h.CardID, len(h.Cards))
	}
	for _, s := range v.Table {
		fmt.Fprintf(&b, "|t%d", s.PlayerID)
		for _, st := range s.Stacks {
			fmt.Fprintf(&b, ":%d", len(st))
		}
	}
	for _, s := range v.Scores {
		fmt.Fprintf(&b, "|s%d=%d", s.PlayerID.Int64(), s.Score.Int64())
	}
	fmt.Fprintf(&b, "|p%d|r%d", len(v.Participants), len(v.Results))
	return b.String()
}

func render(out io.Writer, v session.View) {
	name := v.Session.Name
	if name == "" {
		name = "?"
	}
	fmt.Fprintf(out, "\n== Session %d %q | %s | round %d", v.SessionID, name, v.State, v.Round)
	if v.State == session.Ongoing {
		fmt.Fprintf(out, " | %ds left", v.Remaining)
	}
	if !v.Connected && !v.State.Terminal() {
		fmt.Fprint(out, " | offline")
	}
	fmt.Fprintln(out)

	if len(v.Participants) > 0 {
		names := make([]string, len(v.Participants))
		for i, p := range v.Participants {
			names[i] = p.Username
		}
		fmt.Fprintf(out, "Players: %s\n", strings.Join(names, ", "))
	}

	if len(v.Hand) > 0 {
		fmt.Fprintln(out, "Hand:")
		for _, h := range v.Hand {
			mark := " "
			if h.CardID == v.Selected {
				mark = "*"
			}
			fmt.Fprintf(out, " %s [%d] %s\n", mark, h.CardID, stackLabel(h.Cards))
		}
	}
	if len(v.Table) > 0 {
		fmt.Fprintln(out, "Table:")
		for _, s := range v.Table {
			labels := make([]string, len(s.Stacks))
			for i, st := range s.Stacks {
				labels[i] = stackLabel(st)
			}
			fmt.Fprintf(out, "  %s: %s\n", s.Username, strings.Join(labels, " | "))
		}
	}
	if len(v.Scores) > 0 {
		parts := make([]string, len(v.Scores))
		for i, s := range v.Scores {
			parts[i] = fmt.Sprintf("%s %d", s.Username, s.Score.Int64())
		}
		fmt.Fprintf(out, "Scores: %s\n", strings.Join(parts, ", "))
	}

	switch {
	case v.Submitting:
		fmt.Fprintln(out, "Submitting...")
	case v.Submitted:
		fmt.Fprintln(out, "Card played. Waiting for the other players.")
	case v.CanSubmit:
		fmt.Fprintln(out, "Ready: type 'submit' to play the selected card.")
	}
	if len(v.Results) > 0 {
		fmt.Fprintf(out, "Results: %s\n", v.Results)
	}
	if v.State == session.Rejected {
		fmt.Fprintf(out, "You cannot join this session (%v). Type 'leave' to go back.\n", v.Err)
	}
	if v.Banner != "" {
		fmt.Fprintf(out, "! %s\n", v.Banner)
	}
}

// stackLabel lists a stack bottom to top; malformed stacks arrive empty.
func stackLabel(d stack.Display) string {
	if len(d) == 0 {
		return "(unreadable)"
	}
	names := make([]string, len(d))
	for i, c := range d {
		names[i] = c.ImageName()
	}
	return strings.Join(names, " > ")
}
