package transport

import (
	"bufio"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// stream is a bidirectional line channel. ReadLine is only ever called from
// one goroutine; WriteLine calls are serialized by Conn.
type stream interface {
	ReadLine() (string, error)
	WriteLine(line string, deadline time.Time) error
	Close() error
}

type tcpStream struct {
	conn net.Conn
	r    *bufio.Reader
}

func newTCPStream(conn net.Conn) *tcpStream {
	return &tcpStream{conn: conn, r: bufio.NewReaderSize(conn, 4096)}
}

func (s *tcpStream) ReadLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *tcpStream) WriteLine(line string, deadline time.Time) error {
	_ = s.conn.SetWriteDeadline(deadline)
	_, err := io.WriteString(s.conn, line+"\r\n")
	return err
}

func (s *tcpStream) Close() error {
	return s.conn.Close()
}

// wsStream carries IRC over WebSocket text frames: one line per frame on
// write, tolerant of several CRLF-separated lines per frame on read.
type wsStream struct {
	conn    *websocket.Conn
	pending []string
}

func (s *wsStream) ReadLine() (string, error) {
	for len(s.pending) == 0 {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		for _, part := range strings.Split(string(data), "\n") {
			part = strings.TrimRight(part, "\r")
			if part == "" {
				continue
			}
			s.pending = append(s.pending, part)
		}
	}

	line := s.pending[0]
	s.pending = s.pending[1:]
	return line, nil
}

func (s *wsStream) WriteLine(line string, deadline time.Time) error {
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (s *wsStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), time.Now().Add(2*time.Second))
	return s.conn.Close()
}
