package proxy

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Transport reads and writes whole frames: a Header followed by its
// type-specific payload. Implementations must serialize concurrent writers
// themselves; ReadFrame is only ever called from one dispatcher goroutine
// per connection.
type Transport interface {
	WriteFrame(h Header, payload []byte) error
	ReadFrame() (Header, []byte, error)
	Close() error
}

// streamTransport frames messages over any io.ReadWriteCloser as:
// Header (HeaderSize bytes) + uint32 payload length + payload. A net.Conn
// or either half of a net.Pipe satisfies this, which is what the test suite
// uses in place of a real socket.
type streamTransport struct {
	rw io.ReadWriteCloser

	wmu sync.Mutex
}

// NewStreamTransport wraps rw as a framed Transport.
func NewStreamTransport(rw io.ReadWriteCloser) Transport {
	return &streamTransport{rw: rw}
}

func (t *streamTransport) WriteFrame(h Header, payload []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	buf := make([]byte, HeaderSize+4+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], h.Token)
	buf[4] = byte(h.Type)
	binary.BigEndian.PutUint32(buf[5:9], uint32(h.AppPID))
	buf[9] = h.ExcID
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(payload)))
	copy(buf[14:], payload)

	_, err := t.rw.Write(buf)
	return err
}

func (t *streamTransport) ReadFrame() (Header, []byte, error) {
	head := make([]byte, HeaderSize+4)
	if _, err := io.ReadFull(t.rw, head); err != nil {
		return Header{}, nil, err
	}

	h := Header{
		Token:  binary.BigEndian.Uint32(head[0:4]),
		Type:   MessageType(head[4]),
		AppPID: int32(binary.BigEndian.Uint32(head[5:9])),
		ExcID:  head[9],
	}
	plen := binary.BigEndian.Uint32(head[10:14])
	if plen == 0 {
		return h, nil, nil
	}

	payload := make([]byte, plen)
	if _, err := io.ReadFull(t.rw, payload); err != nil {
		return Header{}, nil, fmt.Errorf("proxy: short payload for %s: %w", h.Type, err)
	}
	return h, payload, nil
}

func (t *streamTransport) Close() error {
	return t.rw.Close()
}
