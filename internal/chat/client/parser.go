package client

import (
	"bufio"
	"io"
	"strings"
)

// Event is one parsed SSE frame.
type Event struct {
	Type string
	Data []byte
}

// Terminal reports whether no further frames may follow this event.
func (e Event) Terminal() bool {
	return e.Type == "result" || e.Type == "error"
}

// parseFrames reads SSE frames from r and sends them on out until the stream
// ends or a terminal frame arrives. The returned error is nil on a clean
// terminal frame or EOF.
func parseFrames(r io.Reader, out chan<- Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event Event
	flush := func() bool {
		if event.Type == "" {
			return false
		}
		out <- event
		terminal := event.Terminal()
		event = Event{}
		return terminal
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if flush() {
				return nil
			}
		case strings.HasPrefix(line, "event: "):
			event.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			event.Data = append(event.Data, strings.TrimPrefix(line, "data: ")...)
		case strings.HasPrefix(line, ":"):
			// comment line, keep-alive filler
		}
	}
	flush()
	return scanner.Err()
}
