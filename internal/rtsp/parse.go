package rtsp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ErrIncomplete is returned by Parse when buf does not yet hold a complete
// message. The caller must read more bytes and retry; buf is not
// consumed.
var ErrIncomplete = fmt.Errorf("rtsp: incomplete message")

const crlf = "\r\n"
const headEnd = "\r\n\r\n"

// Parse attempts to parse one RTSP message from the head of buf.
//
// On success it returns the parsed message and the number of bytes from
// buf that the message occupied; the caller must advance its read buffer
// by exactly that many bytes and may call Parse again to drain any
// pipelined messages that follow.
//
// On ErrIncomplete, buf holds a strict prefix of a message; the caller
// must not advance and should read more bytes before retrying.
//
// Any other error is a fatal, unrecoverable parse error (empty or
// malformed start line, non-numeric status code) and the session that
// produced buf should be torn down.
func Parse(buf []byte) (*Message, int, error) {
	headIdx, sepLen := indexHeadEnd(buf)
	if headIdx < 0 {
		return nil, 0, ErrIncomplete
	}
	head := buf[:headIdx]
	headBytes := headIdx + sepLen

	lines := splitLines(head)
	if len(lines) == 0 || lines[0] == "" {
		return nil, 0, fmt.Errorf("rtsp: empty start line")
	}

	msg, err := parseStartLine(lines[0])
	if err != nil {
		return nil, 0, err
	}

	msg.Headers = NewHeaders()
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			continue
		}
		msg.Headers.SetFirst(name, value)
	}

	contentLength := 0
	if v, ok := msg.Headers.Get("Content-Length"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			contentLength = n
		}
	}

	total := headBytes + contentLength
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}

	if contentLength > 0 {
		msg.Body = append([]byte(nil), buf[headBytes:total]...)
	}

	return msg, total, nil
}

// indexHeadEnd finds the first head-terminating boundary, tolerating a
// bare LF anywhere on input (per framing rules, input laxity does not
// extend to output). It returns the boundary's start index and the
// length of the separator that matched there, since a bare "\n\n"
// boundary is 2 bytes, not the 4 of "\r\n\r\n" — callers must use the
// returned length, not assume CRLF-CRLF, when computing how many bytes
// the head occupies.
func indexHeadEnd(buf []byte) (idx, sepLen int) {
	crlfIdx := bytes.Index(buf, []byte(headEnd))
	// Tolerate bare-LF line endings by searching for "\n\n" as well; the
	// earlier of the two boundaries ends the head, so a CRLF message
	// pipelined after a bare-LF one is not mistaken for its terminator.
	lfIdx := bytes.Index(buf, []byte("\n\n"))
	if lfIdx >= 0 && (crlfIdx < 0 || lfIdx < crlfIdx) {
		return lfIdx, len("\n\n")
	}
	if crlfIdx >= 0 {
		return crlfIdx, len(headEnd)
	}
	return -1, 0
}

// splitLines splits head into lines on CRLF or bare LF.
func splitLines(head []byte) []string {
	normalized := strings.ReplaceAll(string(head), "\r\n", "\n")
	return strings.Split(normalized, "\n")
}

func parseStartLine(line string) (*Message, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, fmt.Errorf("rtsp: start line has fewer than 3 fields: %q", line)
	}

	if strings.HasPrefix(fields[0], "RTSP/") {
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("rtsp: non-numeric status code %q: %w", fields[1], err)
		}
		return &Message{
			IsRequest:  false,
			Version:    fields[0],
			StatusCode: code,
			Reason:     strings.Join(fields[2:], " "),
		}, nil
	}

	return &Message{
		IsRequest: true,
		Method:    fields[0],
		Path:      fields[1],
		Version:   fields[2],
	}, nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
