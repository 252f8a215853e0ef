// Package log reads the log lines the ledger runtime records for each
// transaction.
//
// Lines follow the usual program log shapes:
//
//	Program <id> invoke [<depth>]
//	Program log: <message>
//	Program data: <base64> [<base64>...]
//	Program <id> success
//	Program <id> failed: <reason>
//
// Trace rebuilds the invocation tree from them, and ProgramData returns the
// event payloads one program emitted itself.
package log

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// LineType classifies one log line.
type LineType int

const (
	LineUnknown LineType = iota
	LineInvoke
	LineSuccess
	LineFailed
	LineData
	LineLog
)

func (t LineType) String() string {
	switch t {
	case LineInvoke:
		return "invoke"
	case LineSuccess:
		return "success"
	case LineFailed:
		return "failed"
	case LineData:
		return "data"
	case LineLog:
		return "log"
	default:
		return "unknown"
	}
}

// Line is one parsed log line. Only the fields of its type are set.
type Line struct {
	Type      LineType
	ProgramID string
	Depth     int
	Message   string
	Data      []byte
	Raw       string
}

const (
	programPrefix = "Program "
	logPrefix     = "Program log: "
	dataPrefix    = "Program data: "
)

// ParseLine classifies and decodes a single line. Data lines whose chunks
// are not valid base64 come back with nil Data.
func ParseLine(raw string) Line {
	line := Line{Type: LineUnknown, Raw: raw}

	if msg, ok := strings.CutPrefix(raw, logPrefix); ok {
		line.Type = LineLog
		line.Message = msg
		return line
	}
	if payload, ok := strings.CutPrefix(raw, dataPrefix); ok {
		line.Type = LineData
		for _, chunk := range strings.Fields(payload) {
			decoded, err := base64.StdEncoding.DecodeString(chunk)
			if err != nil {
				line.Data = nil
				return line
			}
			line.Data = append(line.Data, decoded...)
		}
		return line
	}

	rest, ok := strings.CutPrefix(raw, programPrefix)
	if !ok {
		return line
	}
	id, verb, ok := strings.Cut(rest, " ")
	if !ok {
		return line
	}
	switch {
	case verb == "success":
		line.Type = LineSuccess
	case strings.HasPrefix(verb, "failed"):
		line.Type = LineFailed
		line.Message = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(verb, "failed"), ":"))
	case strings.HasPrefix(verb, "invoke [") && strings.HasSuffix(verb, "]"):
		depth, err := strconv.Atoi(verb[len("invoke [") : len(verb)-1])
		if err != nil {
			return line
		}
		line.Type = LineInvoke
		line.Depth = depth
	default:
		return line
	}
	line.ProgramID = id
	return line
}

// Frame is one program invocation and everything it logged.
type Frame struct {
	ProgramID string
	Depth     int
	Logs      []string
	Data      [][]byte
	Failed    bool
	Error     string
	Children  []*Frame
}

// Trace rebuilds the invocation tree from a transaction's log lines and
// returns its top-level frames. Lines outside any invocation are dropped,
// and frames left open by a truncated log stay open.
func Trace(lines []string) []*Frame {
	var (
		roots []*Frame
		stack []*Frame
	)
	for _, raw := range lines {
		line := ParseLine(raw)
		var top *Frame
		if len(stack) > 0 {
			top = stack[len(stack)-1]
		}

		switch line.Type {
		case LineInvoke:
			frame := &Frame{ProgramID: line.ProgramID, Depth: line.Depth}
			if top != nil {
				top.Children = append(top.Children, frame)
			} else {
				roots = append(roots, frame)
			}
			stack = append(stack, frame)
		case LineSuccess, LineFailed:
			if top == nil {
				continue
			}
			if line.Type == LineFailed {
				top.Failed = true
				top.Error = line.Message
			}
			stack = stack[:len(stack)-1]
		case LineLog:
			if top != nil {
				top.Logs = append(top.Logs, line.Message)
			}
		case LineData:
			if top != nil && len(line.Data) > 0 {
				top.Data = append(top.Data, line.Data)
			}
		}
	}
	return roots
}

// Walk visits frames depth first, parents before children.
func Walk(frames []*Frame, fn func(*Frame)) {
	for _, f := range frames {
		fn(f)
		Walk(f.Children, fn)
	}
}

// ProgramData returns the "Program data:" payloads emitted while programID
// was the innermost executing program. Payloads logged by programs it
// invoked are not included.
func ProgramData(lines []string, programID string) [][]byte {
	var data [][]byte
	Walk(Trace(lines), func(f *Frame) {
		if f.ProgramID == programID {
			data = append(data, f.Data...)
		}
	})
	return data
}
