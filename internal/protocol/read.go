package protocol

import (
	"errors"
	"io"
)

// ChunkSize is the read granularity for collecting a message.
const ChunkSize = 4096

// ErrMessageTooLarge reports a message that grew past the caller's cap
// before the terminator arrived.
var ErrMessageTooLarge = errors.New("rksok message exceeds size limit")

// ReadMessage collects one message from r in ChunkSize reads until the
// buffer ends with the terminator. EOF ends the message as-is; an
// unterminated result then fails at parse time. max <= 0 means no cap.
//
// Deadlines are the caller's business: wrap the connection in a reader that
// refreshes them per read, or set one deadline for the whole exchange.
func ReadMessage(r io.Reader, max int64) ([]byte, error) {
	buf := make([]byte, 0, ChunkSize)
	chunk := make([]byte, ChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if max > 0 && int64(len(buf)+n) > max {
				return nil, ErrMessageTooLarge
			}
			buf = append(buf, chunk[:n]...)
			if Terminated(buf) {
				return buf, nil
			}
		}
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
