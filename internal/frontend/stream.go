package frontend

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// MaxContentLength is the largest frame a stream sink accepts (10MB).
const MaxContentLength = 10 * 1024 * 1024

// StreamSink speaks the protocol over a byte stream using Content-Length
// framing, the same framing language servers and debug adapters use.
type StreamSink struct {
	remote

	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewStreamSink wraps rwc. Call Attach to start serving.
func NewStreamSink(rwc io.ReadWriteCloser, opts ...Option) *StreamSink {
	return &StreamSink{
		remote: newRemote(opts),
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
	}
}

// Attach connects the sink to session and starts reading frames. Inbound
// messages are posted to poster until the stream ends.
func (s *StreamSink) Attach(session Session, poster Poster) error {
	if err := s.attach(session, poster, s, func() { _ = s.Close() }); err != nil {
		return fmt.Errorf("attach stream: %w", err)
	}
	go s.readLoop()
	return nil
}

// Send implements inspector.MessageSink.
func (s *StreamSink) Send(message string) {
	if s.isClosed() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFrame(s.rwc, []byte(message)); err != nil {
		s.opts.logger.Debug().Err(err).Msg("stream write failed")
	}
}

// Close closes the stream and detaches the frontend.
func (s *StreamSink) Close() error {
	s.detach()
	return s.rwc.Close()
}

func (s *StreamSink) readLoop() {
	defer s.detach()

	for {
		content, err := readFrame(s.reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				s.opts.logger.Warn().Err(err).Msg("stream read failed")
			}
			return
		}
		if err := s.deliver(string(content)); err != nil {
			s.opts.logger.Debug().Err(err).Msg("engine stopped accepting messages")
			return
		}
	}
}

// writeFrame writes content preceded by its Content-Length header.
func writeFrame(w io.Writer, content []byte) error {
	header := "Content-Length: " + strconv.Itoa(len(content)) + "\r\n\r\n"
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

// readFrame reads one framed message. Unknown headers are ignored.
func readFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header: %s", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "content-length") {
			length, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("invalid content-length: %w", err)
			}
			if length < 0 || length > MaxContentLength {
				return nil, fmt.Errorf("content-length %d exceeds maximum allowed %d", length, MaxContentLength)
			}
			contentLength = length
		}
	}

	if contentLength < 0 {
		return nil, ErrMissingContentLength
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return content, nil
}

// Stdio returns the process's standard input and output as one stream.
func Stdio() io.ReadWriteCloser {
	return stdio{Reader: os.Stdin, Writer: os.Stdout}
}

type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error {
	return os.Stdin.Close()
}
