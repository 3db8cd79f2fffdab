package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dohr-michael/selfware-kernel/internal/events"
)

// textSink renders the kernel's event stream as human-readable lines,
// grounded on the teacher's ask.go stream-rendering loop (start/delta/end
// phases collapsed into one line per event here, since this CLI has no
// streaming token deltas to coalesce).
type textSink struct {
	out   io.Writer
	quiet bool
}

func newTextSink(out io.Writer, quiet bool) *textSink {
	return &textSink{out: out, quiet: quiet}
}

func (s *textSink) Publish(e events.Event) {
	if s.quiet && e.Type != events.EventCompleted && e.Type != events.EventError {
		return
	}
	switch e.Type {
	case events.EventStarted:
		fmt.Fprintln(s.out, "> task started")
	case events.EventStatus:
		fmt.Fprintf(s.out, "  %v\n", e.Payload["message"])
	case events.EventToolStarted:
		fmt.Fprintf(s.out, "  -> %v\n", e.Payload["name"])
	case events.EventToolCompleted:
		status := "ok"
		if success, _ := e.Payload["success"].(bool); !success {
			status = "failed"
		}
		fmt.Fprintf(s.out, "  <- %v (%s, %vms)\n", e.Payload["name"], status, e.Payload["duration_ms"])
	case events.EventTokenUsage:
		if !s.quiet {
			fmt.Fprintf(s.out, "  tokens: %v prompt + %v completion\n", e.Payload["prompt"], e.Payload["completion"])
		}
	case events.EventCompleted:
		fmt.Fprintf(s.out, "%v\n", e.Payload["message"])
	case events.EventError:
		fmt.Fprintf(s.out, "error: %v\n", e.Payload["message"])
	case events.EventLog:
		fmt.Fprintf(s.out, "[%v] %v\n", e.Payload["level"], e.Payload["message"])
	}
}

// jsonSink emits one JSON object per event, for --output-format json and
// for piping into other tooling.
type jsonSink struct {
	enc *json.Encoder
}

func newJSONSink(out io.Writer) *jsonSink {
	return &jsonSink{enc: json.NewEncoder(out)}
}

func (s *jsonSink) Publish(e events.Event) {
	_ = s.enc.Encode(e)
}
