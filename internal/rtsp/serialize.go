package rtsp

import "strconv"

// Serialize renders m to its wire form: the start line verbatim, every
// stored header as "Name: Value\r\n" in insertion order, a blank line,
// then the body. Callers that add or edit a body are responsible for
// keeping Content-Length consistent via SetContentLength.
func (m *Message) Serialize() []byte {
	buf := make([]byte, 0, 256+len(m.Body))

	if m.IsRequest {
		buf = append(buf, m.Method...)
		buf = append(buf, ' ')
		buf = append(buf, m.Path...)
		buf = append(buf, ' ')
		buf = append(buf, m.Version...)
	} else {
		buf = append(buf, m.Version...)
		buf = append(buf, ' ')
		buf = append(buf, strconv.Itoa(m.StatusCode)...)
		buf = append(buf, ' ')
		buf = append(buf, m.Reason...)
	}
	buf = append(buf, crlf...)

	if m.Headers != nil {
		m.Headers.Each(func(name, value string) {
			buf = append(buf, name...)
			buf = append(buf, ": "...)
			buf = append(buf, value...)
			buf = append(buf, crlf...)
		})
	}

	buf = append(buf, crlf...)
	buf = append(buf, m.Body...)

	return buf
}

// SetContentLength sets the Content-Length header to match len(body) and
// stores body. Callers that build a message with a body should use this
// instead of setting Content-Length by hand.
func (m *Message) SetContentLength(body []byte) {
	m.Body = body
	m.Headers.Set("Content-Length", strconv.Itoa(len(body)))
}
