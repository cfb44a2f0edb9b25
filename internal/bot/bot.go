// Package bot is the IRC dispatcher: it reacts to server lines, answers URLs
// posted in chat and exposes the outbound commands used by the console.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"linkbot/internal/history"
	"linkbot/internal/title"
	"linkbot/pkg/irc"
	"linkbot/pkg/transport"
)

const quitMessage = "Shutting down."

// Transport is the line connection the bot writes to and reads from.
type Transport interface {
	Send(line string) error
	Close() error
	IsAlive() bool
	ReadLoop(ctx context.Context, onLine func(line string)) error
}

type State int32

const (
	Unconnected State = iota
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type Options struct {
	Transport Transport
	History   *history.Cache
	// Resolver may be nil; URLs are then answered without a title.
	Resolver title.Resolver
	Logger   *zap.Logger

	Nick    string
	Channel string
	Key     string

	// HistoryPath is where Quit and SaveHistory persist the cache. Empty
	// disables persistence.
	HistoryPath string
}

type Bot struct {
	conn     Transport
	cache    *history.Cache
	resolver title.Resolver
	log      *zap.Logger

	historyPath string

	state atomic.Int32

	// mu serializes outbound writes and guards the fields below.
	mu       sync.Mutex
	nick     string
	channel  string
	key      string
	welcomed bool
	quitting bool
}

func New(opts Options) (*Bot, error) {
	if opts.Transport == nil {
		return nil, errors.New("bot: transport is required")
	}
	cache := opts.History
	if cache == nil {
		cache = history.New(0)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		conn:        opts.Transport,
		cache:       cache,
		resolver:    opts.Resolver,
		log:         log,
		historyPath: strings.TrimSpace(opts.HistoryPath),
		nick:        strings.TrimSpace(opts.Nick),
		channel:     strings.TrimSpace(opts.Channel),
		key:         strings.TrimSpace(opts.Key),
	}, nil
}

func (b *Bot) State() State {
	return State(b.state.Load())
}

func (b *Bot) CurrentNick() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nick
}

// Start registers with the server. The configured channel is joined once
// the server welcomes us.
func (b *Bot) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.state.CompareAndSwap(int32(Unconnected), int32(Connected)) {
		return errors.New("bot: already started")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.Info("registering", zap.String("nick", b.nick))
	return b.sendLocked(irc.Nick(b.nick), irc.User(b.nick))
}

// Run blocks in the transport read loop until the connection ends.
func (b *Bot) Run(ctx context.Context) error {
	defer b.state.Store(int32(Closed))
	err := b.conn.ReadLoop(ctx, func(line string) {
		b.HandleLine(ctx, line)
	})
	// A connection closed before the loop started ended the same way.
	if errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrNotAlive) {
		return nil
	}
	return err
}

func (b *Bot) Alive() bool {
	return b.conn.IsAlive()
}

func (b *Bot) Nick(nick string) error {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return errors.New("bot: empty nick")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.Info("nick", zap.String("nick", nick))
	b.nick = nick
	return b.sendLocked(irc.Nick(nick))
}

// Join makes channel the target of Say.
func (b *Bot) Join(channel, key string) error {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return errors.New("bot: empty channel")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joinLocked(channel, strings.TrimSpace(key))
}

func (b *Bot) joinLocked(channel, key string) error {
	b.log.Info("join", zap.String("channel", channel))
	b.channel = channel
	b.key = key
	return b.sendLocked(irc.Join(channel, key))
}

func (b *Bot) Say(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel == "" {
		return errors.New("bot: no channel joined")
	}
	return b.msgLocked(b.channel, text)
}

// Msg sends one PRIVMSG per non-empty line of text.
func (b *Bot) Msg(target, text string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("bot: empty target")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msgLocked(target, text)
}

func (b *Bot) msgLocked(target, text string) error {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimRight(l, "\r")
		if l == "" {
			continue
		}
		lines = append(lines, irc.Privmsg(target, l))
	}
	return b.sendLocked(lines...)
}

func (b *Bot) Pong(token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendLocked(irc.Pong(token))
}

// Quit saves the history, says goodbye and closes the connection. Only the
// first call does anything.
func (b *Bot) Quit() error {
	b.mu.Lock()
	if b.quitting {
		b.mu.Unlock()
		return nil
	}
	b.quitting = true
	b.log.Info("quitting")

	b.SaveHistory()
	if err := b.sendLocked(irc.Quit(quitMessage)); err != nil && !errors.Is(err, transport.ErrNotAlive) {
		b.log.Warn("quit message not sent", zap.Error(err))
	}
	b.mu.Unlock()

	err := b.conn.Close()
	b.state.Store(int32(Closed))
	return err
}

// SaveHistory persists the cache. Failures are logged and otherwise ignored.
func (b *Bot) SaveHistory() {
	if b.historyPath == "" {
		return
	}
	if err := b.cache.SaveToLog(b.historyPath); err != nil {
		b.log.Error("history save failed", zap.String("path", b.historyPath), zap.Error(err))
		return
	}
	b.log.Debug("history saved", zap.String("path", b.historyPath), zap.Int("entries", b.cache.Size()))
}

func (b *Bot) sendLocked(lines ...string) error {
	for _, line := range lines {
		b.log.Debug("send", zap.String("line", line))
		if err := b.conn.Send(line); err != nil {
			return err
		}
	}
	return nil
}
