// Package console reads operator commands from a local line stream and
// forwards them to the bot.
package console

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"
)

type Actions interface {
	Nick(nick string) error
	Join(channel, key string) error
	Msg(target, text string) error
	Say(text string) error
	Quit() error
	Alive() bool
}

type Kind int

const (
	KindNick Kind = iota + 1
	KindJoin
	KindMsg
	KindSay
	KindQuit
)

// Command is one parsed console line. Target holds the nick, the channel or
// the message target depending on Kind.
type Command struct {
	Kind   Kind
	Target string
	Key    string
	Text   string
}

// Parse understands:
//
//	/n <nick>
//	/j <channel> [key]
//	/m <target> <text>
//	/s <text>
//	/q
func Parse(line string) (Command, bool) {
	line = strings.TrimRight(line, "\r\n")
	head, rest := cut(strings.TrimLeft(line, " \t"))

	switch head {
	case "/n":
		nick, _ := cut(rest)
		if nick == "" {
			return Command{}, false
		}
		return Command{Kind: KindNick, Target: nick}, true
	case "/j":
		channel, rest := cut(rest)
		if channel == "" {
			return Command{}, false
		}
		key, _ := cut(rest)
		return Command{Kind: KindJoin, Target: channel, Key: key}, true
	case "/m":
		target, text := cut(rest)
		if target == "" || strings.TrimSpace(text) == "" {
			return Command{}, false
		}
		return Command{Kind: KindMsg, Target: target, Text: text}, true
	case "/s":
		if strings.TrimSpace(rest) == "" {
			return Command{}, false
		}
		return Command{Kind: KindSay, Text: rest}, true
	case "/q":
		return Command{Kind: KindQuit}, true
	default:
		return Command{}, false
	}
}

// cut returns the first space-separated token and the remainder after the
// single separating space.
func cut(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

type Console struct {
	actions Actions
	log     *zap.Logger
}

func New(actions Actions, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{actions: actions, log: log}
}

// Run executes commands read from r until EOF, ctx is done, or the bot is
// no longer alive. The liveness check happens after each line, so a blocked
// reader keeps Run waiting until its next line arrives.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		c.exec(sc.Text())
		if !c.actions.Alive() {
			return nil
		}
	}
	return sc.Err()
}

func (c *Console) exec(line string) {
	cmd, ok := Parse(line)
	if !ok {
		if strings.TrimSpace(line) != "" {
			c.log.Debug("ignored console line", zap.String("line", line))
		}
		return
	}

	var err error
	switch cmd.Kind {
	case KindNick:
		err = c.actions.Nick(cmd.Target)
	case KindJoin:
		err = c.actions.Join(cmd.Target, cmd.Key)
	case KindMsg:
		err = c.actions.Msg(cmd.Target, cmd.Text)
	case KindSay:
		err = c.actions.Say(cmd.Text)
	case KindQuit:
		err = c.actions.Quit()
	}
	if err != nil {
		c.log.Warn("console command failed", zap.String("line", line), zap.Error(err))
	}
}
