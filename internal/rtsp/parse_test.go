package rtsp_test

import (
	"testing"

	"github.com/oakwood-labs/rtspgw/internal/rtsp"
	"github.com/stretchr/testify/require"
)

func TestParse_RequestStartLine(t *testing.T) {
	raw := "SETUP rtsp://o/s RTSP/1.0\r\nCSeq: 1\r\nTransport: RTP/AVP;unicast;client_port=9000-9001\r\n\r\n"

	msg, consumed, err := rtsp.Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, len(raw), consumed)
	require.True(t, msg.IsRequest)
	require.Equal(t, "SETUP", msg.Method)
	require.Equal(t, "rtsp://o/s", msg.Path)
	require.Equal(t, "RTSP/1.0", msg.Version)

	cseq, ok := msg.Headers.Get("cseq")
	require.True(t, ok)
	require.Equal(t, "1", cseq)
}

func TestParse_ResponseStartLineWithMultiWordReason(t *testing.T) {
	raw := "RTSP/1.0 461 Unsupported Transport\r\nCSeq: 2\r\nContent-Length: 0\r\n\r\n"

	msg, consumed, err := rtsp.Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, len(raw), consumed)
	require.False(t, msg.IsRequest)
	require.Equal(t, 461, msg.StatusCode)
	require.Equal(t, "Unsupported Transport", msg.Reason)
}

func TestParse_BodyBoundedByContentLength(t *testing.T) {
	body := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"
	raw := "RTSP/1.0 200 OK\r\nCSeq: 3\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body

	msg, consumed, err := rtsp.Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, len(raw), consumed)
	require.Equal(t, []byte(body), msg.Body)
}

func TestParse_MissingContentLengthMeansZeroBodyLength(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nCSeq: 4\r\n\r\n"

	msg, consumed, err := rtsp.Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, len(raw), consumed)
	require.Empty(t, msg.Body)
}

// P2: feeding a strict prefix of a complete message returns ErrIncomplete,
// and feeding the full message returns exactly len(message) consumed.
func TestParse_PartialInput(t *testing.T) {
	raw := "DESCRIBE rtsp://o/s RTSP/1.0\r\nCSeq: 1\r\nContent-Length: 5\r\n\r\nhello"

	for n := 0; n < len(raw); n++ {
		_, _, err := rtsp.Parse([]byte(raw[:n]))
		require.ErrorIs(t, err, rtsp.ErrIncomplete, "prefix of length %d should be incomplete", n)
	}

	_, consumed, err := rtsp.Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, len(raw), consumed)
}

// P3: concatenating k complete messages and parsing repeatedly returns
// exactly k messages with cumulative consumption equal to the total byte
// length.
func TestParse_Pipelining(t *testing.T) {
	one := "OPTIONS rtsp://o/s RTSP/1.0\r\nCSeq: 1\r\n\r\n"
	two := "DESCRIBE rtsp://o/s RTSP/1.0\r\nCSeq: 2\r\n\r\n"
	three := "RTSP/1.0 200 OK\r\nCSeq: 2\r\nContent-Length: 0\r\n\r\n"

	buf := []byte(one + two + three)
	var messages []*rtsp.Message
	total := 0

	for len(buf) > 0 {
		msg, consumed, err := rtsp.Parse(buf)
		require.NoError(t, err)
		messages = append(messages, msg)
		buf = buf[consumed:]
		total += consumed
	}

	require.Len(t, messages, 3)
	require.Equal(t, len(one)+len(two)+len(three), total)
	require.Equal(t, "OPTIONS", messages[0].Method)
	require.Equal(t, "DESCRIBE", messages[1].Method)
	require.False(t, messages[2].IsRequest)
}

// P1: parsing, re-serializing, then re-parsing yields an equal message on
// method/status, path/reason, version, body, and header multiset.
func TestParse_RoundTrip(t *testing.T) {
	raw := "SETUP rtsp://o/s/trackID=0 RTSP/1.0\r\nCSeq: 7\r\nTransport: RTP/AVP;unicast;client_port=9000-9001\r\nContent-Length: 0\r\n\r\n"

	first, _, err := rtsp.Parse([]byte(raw))
	require.NoError(t, err)

	serialized := first.Serialize()
	second, consumed, err := rtsp.Parse(serialized)
	require.NoError(t, err)
	require.Equal(t, len(serialized), consumed)

	require.Equal(t, first.IsRequest, second.IsRequest)
	require.Equal(t, first.Method, second.Method)
	require.Equal(t, first.Path, second.Path)
	require.Equal(t, first.Version, second.Version)
	require.Equal(t, first.Body, second.Body)

	require.Equal(t, first.Headers.Len(), second.Headers.Len())
	first.Headers.Each(func(name, value string) {
		got, ok := second.Headers.Get(name)
		require.True(t, ok, "missing header %s after round-trip", name)
		require.Equal(t, value, got)
	})
}

// Bare LF framing is tolerated on input (§4.1) but is only 2 bytes wide,
// not the 4 of CRLF-CRLF; a bodyless message must still be fully
// consumed, and a pipelined message following it must not be shifted.
func TestParse_BareLFFraming(t *testing.T) {
	raw := "OPTIONS rtsp://o/s RTSP/1.0\nCSeq: 1\n\n"

	msg, consumed, err := rtsp.Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, len(raw), consumed)
	require.True(t, msg.IsRequest)
	require.Equal(t, "OPTIONS", msg.Method)

	cseq, ok := msg.Headers.Get("cseq")
	require.True(t, ok)
	require.Equal(t, "1", cseq)
}

func TestParse_BareLFFramingWithBodyAndPipelining(t *testing.T) {
	body := "v=0\n"
	first := "DESCRIBE rtsp://o/s RTSP/1.0\nCSeq: 1\nContent-Length: " + itoa(len(body)) + "\n\n" + body
	second := "OPTIONS rtsp://o/s RTSP/1.0\r\nCSeq: 2\r\n\r\n"

	buf := []byte(first + second)

	msg1, consumed1, err := rtsp.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, len(first), consumed1)
	require.Equal(t, []byte(body), msg1.Body)

	buf = buf[consumed1:]
	msg2, consumed2, err := rtsp.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, len(second), consumed2)
	require.Equal(t, "OPTIONS", msg2.Method)
}

func TestParse_FatalErrors(t *testing.T) {
	cases := map[string]string{
		"empty start line":        "\r\n\r\n",
		"too few start line tokens": "SETUP rtsp://o/s\r\n\r\n",
		"non-numeric status code": "RTSP/1.0 OK Fine\r\n\r\n",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := rtsp.Parse([]byte(raw))
			require.Error(t, err)
			require.NotErrorIs(t, err, rtsp.ErrIncomplete)
		})
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
