package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"linkbot/internal/history"
	"linkbot/internal/title"
	"linkbot/pkg/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	closed bool

	inbound chan string
	done    chan struct{}
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan string, 16), done: make(chan struct{})}
}

func (f *fakeTransport) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrNotAlive
	}
	f.sent = append(f.sent, line)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeTransport) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeTransport) ReadLoop(ctx context.Context, onLine func(string)) error {
	for {
		select {
		case <-ctx.Done():
			_ = f.Close()
			return ctx.Err()
		case <-f.done:
			return nil
		case line := <-f.inbound:
			onLine(line)
		}
	}
}

func (f *fakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

type fakeResolver struct {
	mu     sync.Mutex
	titles map[string]string
	calls  []string
}

func (r *fakeResolver) Resolve(_ context.Context, u string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, u)
	if t, ok := r.titles[u]; ok {
		return t, nil
	}
	return "", title.ErrUnavailable
}

func newTestBot(t *testing.T, opts Options) (*Bot, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	opts.Transport = ft
	if opts.Nick == "" {
		opts.Nick = "linkbot"
	}
	b, err := New(opts)
	require.NoError(t, err)
	return b, ft
}

func TestNew_RequiresTransport(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestStart_RegistersAndJoinsOnWelcome(t *testing.T) {
	b, ft := newTestBot(t, Options{Channel: "#go", Key: "secret"})
	require.Equal(t, Unconnected, b.State())

	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, Connected, b.State())
	assert.Equal(t, []string{"NICK linkbot", "USER linkbot * * :linkbot"}, ft.Sent())
	assert.Error(t, b.Start(context.Background()))

	ft.Reset()
	b.HandleLine(context.Background(), ":irc.example.net 001 linkbot :Welcome")
	b.HandleLine(context.Background(), ":irc.example.net 001 linkbot :Welcome")
	assert.Equal(t, []string{"JOIN #go secret"}, ft.Sent())
}

func TestHandleLine_NickInUseRetriesBeforeWelcome(t *testing.T) {
	b, ft := newTestBot(t, Options{Channel: "#go"})
	require.NoError(t, b.Start(context.Background()))
	ft.Reset()

	b.HandleLine(context.Background(), ":irc.example.net 433 * linkbot :Nickname is already in use")
	assert.Equal(t, []string{"NICK linkbot_"}, ft.Sent())
	assert.Equal(t, "linkbot_", b.CurrentNick())

	b.HandleLine(context.Background(), ":irc.example.net 001 linkbot_ :Welcome")
	ft.Reset()
	b.HandleLine(context.Background(), ":irc.example.net 433 * other :Nickname is already in use")
	assert.Empty(t, ft.Sent())
}

func TestHandleLine_PingPong(t *testing.T) {
	b, ft := newTestBot(t, Options{})
	b.HandleLine(context.Background(), "PING :irc.example.net")
	b.HandleLine(context.Background(), "PING token123")
	assert.Equal(t, []string{"PONG :irc.example.net", "PONG :token123"}, ft.Sent())
}

func TestHandleLine_NewThenSeenURL(t *testing.T) {
	res := &fakeResolver{titles: map[string]string{"http://example.com/page": "Example Page"}}
	b, ft := newTestBot(t, Options{Channel: "#go", Resolver: res})

	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :look at http://example.com/page please")
	assert.Equal(t, []string{"PRIVMSG #go :[#1] Example Page (example.com/page)"}, ft.Sent())

	ft.Reset()
	b.HandleLine(context.Background(), ":bob!b@host PRIVMSG #go :https://WWW.Example.com/page#again")
	assert.Equal(t, []string{"PRIVMSG #go :[#1] Example Page (already posted by alice)"}, ft.Sent())
	assert.Len(t, res.calls, 1, "seen URLs are not resolved again")
}

func TestHandleLine_UntitledURLs(t *testing.T) {
	b, ft := newTestBot(t, Options{Channel: "#go", Resolver: &fakeResolver{}})

	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :www.nowhere.org/x and site.com/yes")
	assert.Equal(t, []string{
		"PRIVMSG #go :[#1] nowhere.org/x",
		"PRIVMSG #go :[#2] site.com/yes",
	}, ft.Sent())

	ft.Reset()
	b.HandleLine(context.Background(), ":carol!c@host PRIVMSG #go :http://site.com/yes")
	assert.Equal(t, []string{"PRIVMSG #go :[#2] already posted by alice"}, ft.Sent())
}

func TestHandleLine_DuplicateURLInOneMessageAnsweredOnce(t *testing.T) {
	b, ft := newTestBot(t, Options{Channel: "#go"})
	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :http://a.com/x http://www.a.com/x")
	assert.Equal(t, []string{"PRIVMSG #go :[#1] a.com/x"}, ft.Sent())
}

func TestHandleLine_PrivateMessageRepliesToSender(t *testing.T) {
	b, ft := newTestBot(t, Options{Channel: "#go"})
	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG linkbot :http://a.com/")
	assert.Equal(t, []string{"PRIVMSG alice :[#1] a.com/"}, ft.Sent())
}

func TestHandleLine_IgnoresOwnAndPlainMessages(t *testing.T) {
	b, ft := newTestBot(t, Options{Channel: "#go"})
	b.HandleLine(context.Background(), ":linkbot!l@host PRIVMSG #go :http://a.com/")
	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :no links here")
	b.HandleLine(context.Background(), ":alice!a@host JOIN #go")
	b.HandleLine(context.Background(), "")
	assert.Empty(t, ft.Sent())
	assert.Equal(t, 0, b.cache.Size())
}

func TestHandleLine_LongURLIsShortened(t *testing.T) {
	long := "http://example.com/" + strings.Repeat("a", 90) + "z"
	res := &fakeResolver{titles: map[string]string{long: "Long"}}
	b, ft := newTestBot(t, Options{Channel: "#go", Resolver: res})
	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :"+long)

	sent := ft.Sent()
	require.Len(t, sent, 1)
	assert.Regexp(t, `^PRIVMSG #go :\[#1\] Long \(example\.com/a+\[\.\.\]a+z\)$`, sent[0])
}

func TestHandleLine_ErrorClosesTransport(t *testing.T) {
	b, ft := newTestBot(t, Options{})
	b.HandleLine(context.Background(), "ERROR :Closing Link: linkbot (Ping timeout)")
	assert.False(t, ft.IsAlive())
	assert.False(t, b.Alive())
}

func TestMsg_SplitsLines(t *testing.T) {
	b, ft := newTestBot(t, Options{})
	require.NoError(t, b.Msg("alice", "one\r\n\ntwo\n"))
	assert.Equal(t, []string{"PRIVMSG alice :one", "PRIVMSG alice :two"}, ft.Sent())
	assert.Error(t, b.Msg(" ", "x"))
}

func TestSay_UsesJoinedChannel(t *testing.T) {
	b, ft := newTestBot(t, Options{})
	assert.Error(t, b.Say("hi"))

	require.NoError(t, b.Join("#a", ""))
	require.NoError(t, b.Join("#b", "k"))
	require.NoError(t, b.Say("hi"))
	assert.Equal(t, []string{"JOIN #a", "JOIN #b k", "PRIVMSG #b :hi"}, ft.Sent())
}

func TestNick_Changes(t *testing.T) {
	b, ft := newTestBot(t, Options{})
	require.NoError(t, b.Nick("other"))
	assert.Equal(t, "other", b.CurrentNick())
	assert.Equal(t, []string{"NICK other"}, ft.Sent())
	assert.Error(t, b.Nick(""))
}

func TestQuit_SavesHistoryThenClosesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.log")
	b, ft := newTestBot(t, Options{Channel: "#go", HistoryPath: path})
	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :http://a.com/")
	ft.Reset()

	require.NoError(t, b.Quit())
	require.NoError(t, b.Quit())

	assert.Equal(t, []string{"QUIT :Shutting down."}, ft.Sent())
	assert.False(t, b.Alive())
	assert.Equal(t, Closed, b.State())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a.com/\n\nalice\n", string(raw))

	assert.True(t, errors.Is(b.Say("late"), transport.ErrNotAlive))
}

func TestRun_StopsOnQuitFromAnotherGoroutine(t *testing.T) {
	b, ft := newTestBot(t, Options{Channel: "#go"})
	require.NoError(t, b.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	ft.inbound <- "PING :x"
	require.Eventually(t, func() bool {
		for _, l := range ft.Sent() {
			if l == "PONG :x" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Quit())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Quit")
	}
	assert.Equal(t, Closed, b.State())
}

func TestRun_ContextCancelIsClean(t *testing.T) {
	b, _ := newTestBot(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}

func TestRun_LoadedHistoryIsSeen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.log")
	require.NoError(t, os.WriteFile(path, []byte("a.com/x\nOld title\nzed\n"), 0o644))

	cache := history.New(8)
	require.NoError(t, cache.LoadFromLog(path))

	b, ft := newTestBot(t, Options{Channel: "#go", History: cache})
	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :http://A.com/x")
	assert.Equal(t, []string{"PRIVMSG #go :[#1] Old title (already posted by zed)"}, ft.Sent())
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"nothing here", nil},
		{"see http://example.com.", []string{"http://example.com"}},
		{"(https://en.wikipedia.org/wiki/Go_(game))", []string{"https://en.wikipedia.org/wiki/Go_(game)"}},
		{"www2.site.org/a, then foo.io/bar!", []string{"www2.site.org/a", "foo.io/bar"}},
		{"bare.io/x is too short", nil},
		{"HTTP://X.COM/1 http://x.com/1", []string{"HTTP://X.COM/1"}},
		{"look http://#top or http://www.#x", nil},
		{"\x01ACTION see http://x.com/a\x01", []string{"http://x.com/a"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURLs(tt.text))
		})
	}
}

func TestHandleLine_EmptyKeyURLIsIgnored(t *testing.T) {
	b, ft := newTestBot(t, Options{Channel: "#go"})
	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :look http://#top")
	assert.Empty(t, ft.Sent())
	assert.Equal(t, 0, b.cache.Size())
}

func TestHandleLine_CTCPActionURL(t *testing.T) {
	res := &fakeResolver{titles: map[string]string{"http://x.com/a": "X"}}
	b, ft := newTestBot(t, Options{Channel: "#go", Resolver: res})
	b.HandleLine(context.Background(), ":alice!a@host PRIVMSG #go :\x01ACTION see http://x.com/a\x01")
	assert.Equal(t, []string{"PRIVMSG #go :[#1] X (x.com/a)"}, ft.Sent())
	assert.Equal(t, []string{"x.com/a"}, b.cache.Keys())
}

func TestSaveHistory_ChatInputSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.log")
	b, ft := newTestBot(t, Options{Channel: "#go", HistoryPath: path})

	for _, line := range []string{
		":alice!a@host PRIVMSG #go :look http://#top",
		":alice!a@host PRIVMSG #go :http://www.#x and http://a.com/x",
		":bob!b@host PRIVMSG #go :\x01ACTION likes https://b.org/y\x01",
		":carol!c@host PRIVMSG #go :http://",
	} {
		b.HandleLine(context.Background(), line)
	}
	assert.Equal(t, []string{
		"PRIVMSG #go :[#1] a.com/x",
		"PRIVMSG #go :[#2] b.org/y",
	}, ft.Sent())

	b.SaveHistory()

	reloaded := history.New(8)
	require.NoError(t, reloaded.LoadFromLog(path))
	assert.Equal(t, b.cache.Keys(), reloaded.Keys())

	e, ok := reloaded.Find("b.org/y")
	require.True(t, ok)
	assert.Equal(t, history.Entry{ID: 2, Author: "bob"}, e)
}
