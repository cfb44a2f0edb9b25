package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"linkbot/internal/history"
	"linkbot/pkg/irc"
	"linkbot/pkg/x/htmlutil"
)

// Gruber's "improved liberal" URL pattern (daringfireball.net, 2010).
var urlPattern = regexp.MustCompile(`(?i)(?:https?://|www\d{0,3}[.]|[a-z0-9.\-]+[.][a-z]{2,4}/)(?:[^\s()<>]+|\((?:[^\s()<>]+|\([^\s()<>]+\))*\))+(?:\((?:[^\s()<>]+|\([^\s()<>]+\))*\)|[^\s` + "`" + `!()\[\]{};:'".,<>?«»“”‘’])`)

const (
	displayMaxRunes = 80
	ctcpDelim       = "\x01"
)

// ExtractURLs returns the URL-shaped substrings of text in order of
// appearance. URLs that normalize to the same key are returned once and
// URLs with an empty key are dropped. CTCP delimiters never end up in a
// match.
func ExtractURLs(text string) []string {
	text = strings.ReplaceAll(text, ctcpDelim, " ")
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		key := history.Normalize(m)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// HandleLine reacts to one inbound server line.
func (b *Bot) HandleLine(ctx context.Context, line string) {
	msg, err := irc.Parse(line)
	if err != nil {
		return
	}
	b.log.Debug("recv", zap.String("line", line))

	switch msg.Command {
	case "PING":
		if err := b.Pong(msg.Trailing()); err != nil {
			b.log.Warn("pong failed", zap.Error(err))
		}
	case "PRIVMSG":
		b.handlePrivmsg(ctx, msg)
	case irc.RplWelcome:
		b.handleWelcome(msg)
	case irc.ErrNicknameInUse:
		b.handleNickInUse()
	case "ERROR":
		b.log.Warn("server closed the link", zap.String("reason", msg.Trailing()))
		_ = b.conn.Close()
	}
}

func (b *Bot) handleWelcome(msg irc.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.welcomed {
		return
	}
	b.welcomed = true
	if n := msg.Param(0); n != "" {
		b.nick = n
	}
	b.log.Info("registered", zap.String("nick", b.nick))
	if b.channel == "" {
		return
	}
	if err := b.joinLocked(b.channel, b.key); err != nil {
		b.log.Warn("join failed", zap.Error(err))
	}
}

func (b *Bot) handleNickInUse() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.welcomed {
		return
	}
	b.nick += "_"
	b.log.Info("nick in use, retrying", zap.String("nick", b.nick))
	if err := b.sendLocked(irc.Nick(b.nick)); err != nil {
		b.log.Warn("nick retry failed", zap.Error(err))
	}
}

func (b *Bot) handlePrivmsg(ctx context.Context, msg irc.Message) {
	if len(msg.Params) < 2 || msg.Nick == "" {
		return
	}
	own := b.CurrentNick()
	if strings.EqualFold(msg.Nick, own) {
		return
	}

	replyTo := msg.Param(0)
	if strings.EqualFold(replyTo, own) {
		replyTo = msg.Nick
	}

	for _, u := range ExtractURLs(msg.Trailing()) {
		if ctx.Err() != nil {
			return
		}
		resp := b.describe(ctx, u, msg.Nick)
		if err := b.Msg(replyTo, resp); err != nil {
			b.log.Warn("reply failed", zap.String("to", replyTo), zap.Error(err))
			return
		}
	}
}

// describe records u as posted by author if it is new and returns the reply
// line for it.
func (b *Bot) describe(ctx context.Context, u, author string) string {
	if e, ok := b.cache.Find(u); ok {
		return seenResponse(e)
	}

	t := b.resolveTitle(ctx, u)
	if !b.cache.Insert(u, t, author) {
		if e, ok := b.cache.Find(u); ok {
			return seenResponse(e)
		}
	}
	e, _ := b.cache.Find(u)
	return newResponse(e, htmlutil.Shorten(history.Normalize(u), displayMaxRunes))
}

func (b *Bot) resolveTitle(ctx context.Context, u string) string {
	if b.resolver == nil {
		return ""
	}
	t, err := b.resolver.Resolve(ctx, u)
	if err != nil {
		b.log.Debug("no title", zap.String("url", u), zap.Error(err))
		return ""
	}
	return htmlutil.CleanText(t)
}

func newResponse(e history.Entry, display string) string {
	if e.Title == "" {
		return fmt.Sprintf("[#%d] %s", e.ID, display)
	}
	return fmt.Sprintf("[#%d] %s (%s)", e.ID, e.Title, display)
}

func seenResponse(e history.Entry) string {
	if e.Title == "" {
		return fmt.Sprintf("[#%d] already posted by %s", e.ID, e.Author)
	}
	return fmt.Sprintf("[#%d] %s (already posted by %s)", e.ID, e.Title, e.Author)
}
