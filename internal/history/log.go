package history

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var ErrMalformedLog = errors.New("history: malformed log")

type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("history: load %s (line %d): %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("history: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("history: save %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

type record struct {
	key    string
	title  string
	author string
}

// LoadFromLog replays a log written by SaveToLog in file order. Keys are
// stored normalized, so they are inserted as-is. A missing or empty file
// loads nothing. A truncated record aborts the whole load and the
// cache is left unchanged.
func (c *Cache) LoadFromLog(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.log.Debug("no history log", zap.String("path", path))
			return nil
		}
		return &LoadError{Path: path, Err: err}
	}

	records, err := parseLog(b)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
			return le
		}
		return &LoadError{Path: path, Err: err}
	}

	c.mu.Lock()
	loaded := 0
	for _, r := range records {
		if c.insertLocked(r.key, r.title, r.author) {
			loaded++
		}
	}
	c.mu.Unlock()

	c.log.Info("history loaded", zap.String("path", path), zap.Int("records", len(records)), zap.Int("inserted", loaded))
	return nil
}

func parseLog(b []byte) ([]record, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}

	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if rem := len(lines) % 3; rem != 0 {
		return nil, &LoadError{
			Line: len(lines) - rem + 1,
			Err:  fmt.Errorf("%w: record has %d of 3 lines", ErrMalformedLog, rem),
		}
	}

	records := make([]record, 0, len(lines)/3)
	for i := 0; i < len(lines); i += 3 {
		if strings.TrimSpace(lines[i]) == "" {
			return nil, &LoadError{Line: i + 1, Err: fmt.Errorf("%w: empty key", ErrMalformedLog)}
		}
		records = append(records, record{key: lines[i], title: lines[i+1], author: lines[i+2]})
	}
	return records, nil
}

// SaveToLog rewrites path with every entry, oldest first, three lines each.
func (c *Cache) SaveToLog(path string) error {
	var buf bytes.Buffer

	c.mu.Lock()
	written := 0
	for _, key := range c.order {
		e, ok := c.entries[key]
		if !ok {
			c.log.Error("history key without entry, skipping", zap.String("key", key))
			continue
		}
		buf.WriteString(singleLine(key))
		buf.WriteByte('\n')
		buf.WriteString(singleLine(e.Title))
		buf.WriteByte('\n')
		buf.WriteString(singleLine(e.Author))
		buf.WriteByte('\n')
		written++
	}
	c.mu.Unlock()

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	c.log.Info("history saved", zap.String("path", path), zap.Int("records", written))
	return nil
}

func singleLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}

	_ = os.Remove(path) // Windows rename doesn't overwrite.
	return os.Rename(tmp, path)
}
