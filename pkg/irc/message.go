package irc

import (
	"errors"
	"strings"
)

const (
	RplWelcome       = "001"
	ErrNicknameInUse = "433"
)

var ErrEmptyLine = errors.New("irc: empty line")

// Message is one inbound protocol line.
type Message struct {
	Prefix  string
	Nick    string
	Command string
	Params  []string
}

// Parse splits a raw line into prefix, command and params. A ':'-prefixed
// trailing parameter is kept verbatim as the last param.
func Parse(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	s := strings.TrimLeft(line, " ")
	if s == "" {
		return Message{}, ErrEmptyLine
	}

	var msg Message
	if s[0] == ':' {
		end := strings.IndexByte(s, ' ')
		if end < 0 {
			return Message{}, errors.New("irc: prefix without command")
		}
		msg.Prefix = s[1:end]
		msg.Nick = msg.Prefix
		if i := strings.IndexByte(msg.Prefix, '!'); i >= 0 {
			msg.Nick = msg.Prefix[:i]
		}
		s = strings.TrimLeft(s[end+1:], " ")
	}

	if end := strings.IndexByte(s, ' '); end >= 0 {
		msg.Command = strings.ToUpper(s[:end])
		s = s[end+1:]
	} else {
		msg.Command = strings.ToUpper(s)
		s = ""
	}
	if msg.Command == "" {
		return Message{}, errors.New("irc: missing command")
	}

	for s != "" {
		if s[0] == ':' {
			msg.Params = append(msg.Params, s[1:])
			break
		}
		if s[0] == ' ' {
			s = s[1:]
			continue
		}
		end := strings.IndexByte(s, ' ')
		if end < 0 {
			msg.Params = append(msg.Params, s)
			break
		}
		msg.Params = append(msg.Params, s[:end])
		s = s[end+1:]
	}

	return msg, nil
}

func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

func (m Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}
