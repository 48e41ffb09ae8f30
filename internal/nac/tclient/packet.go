package tclient

import (
	"encoding/binary"
	"errors"
)

// ProtocolVersion is the single wire version this client speaks. A peer
// advertising any other version is rejected outright.
const ProtocolVersion uint32 = 1

// HeaderSize is the fixed-length frame header: version(4) + bodyLen(4) +
// bizCode(4) + seqID(8), all big-endian.
const HeaderSize = 20

// MaxBodySize is the hard ceiling on a single packet's payload. A frame
// whose declared or actual body length reaches this bound is rejected
// rather than buffered, the same 10 MiB cutoff the original protocol
// adapter enforces.
const MaxBodySize = 10 * 1024 * 1024

var (
	// ErrVersionMismatch is raised when a frame's header advertises a
	// protocol version this client does not speak.
	ErrVersionMismatch = errors.New("tclient: packet version mismatch")

	// ErrBodyTooLarge is raised when a frame's declared or observed body
	// length reaches MaxBodySize.
	ErrBodyTooLarge = errors.New("tclient: packet body exceeds max size")

	// errShortHeader is returned internally while a header is still
	// being accumulated; it never escapes to a DataCallback.
	errShortHeader = errors.New("tclient: incomplete header")
)

// Packet is one application-level message: a business code identifying
// the handler, a correlation id used to match a request to its response,
// and an opaque payload.
type Packet struct {
	BizCode int32
	SeqID   int64
	Data    []byte
}

// Encode renders p as a length-prefixed frame: a HeaderSize header
// followed by p.Data. It returns ErrBodyTooLarge rather than silently
// truncating an oversized payload.
func Encode(p *Packet) ([]byte, error) {
	if len(p.Data) >= MaxBodySize {
		return nil, ErrBodyTooLarge
	}

	buf := make([]byte, HeaderSize+len(p.Data))
	binary.BigEndian.PutUint32(buf[0:4], ProtocolVersion)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(p.Data)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(p.BizCode))
	binary.BigEndian.PutUint64(buf[12:20], uint64(p.SeqID))
	copy(buf[HeaderSize:], p.Data)
	return buf, nil
}

type header struct {
	version uint32
	bodyLen uint32
	bizCode int32
	seqID   int64
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < HeaderSize {
		return header{}, errShortHeader
	}
	h := header{
		version: binary.BigEndian.Uint32(buf[0:4]),
		bodyLen: binary.BigEndian.Uint32(buf[4:8]),
		bizCode: int32(binary.BigEndian.Uint32(buf[8:12])),
		seqID:   int64(binary.BigEndian.Uint64(buf[12:20])),
	}
	if h.version != ProtocolVersion {
		return h, ErrVersionMismatch
	}
	if h.bodyLen >= MaxBodySize {
		return h, ErrBodyTooLarge
	}
	return h, nil
}

// Framer incrementally reassembles Packets out of a byte stream that may
// deliver partial frames, multiple frames, or frames split mid-header —
// exactly what a raw net.Conn hands a reader. It is not safe for
// concurrent use; callers serialize reads through one goroutine, which
// is how every Transport in this package drives it.
type Framer struct {
	buf []byte
}

// NewFramer builds an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends newly-read bytes and returns every complete Packet now
// available, in arrival order. A version mismatch or oversized body
// aborts framing entirely: the connection is no longer trustworthy and
// the caller should tear it down.
func (f *Framer) Feed(data []byte) ([]*Packet, error) {
	f.buf = append(f.buf, data...)

	var packets []*Packet
	for {
		h, err := decodeHeader(f.buf)
		if err == errShortHeader {
			break
		}
		if err != nil {
			return packets, err
		}

		total := HeaderSize + int(h.bodyLen)
		if len(f.buf) < total {
			break
		}

		body := make([]byte, h.bodyLen)
		copy(body, f.buf[HeaderSize:total])
		packets = append(packets, &Packet{BizCode: h.bizCode, SeqID: h.seqID, Data: body})

		f.buf = f.buf[total:]
	}
	return packets, nil
}

// Reset clears any partially-buffered frame, used when the underlying
// connection status changes (e.g. a fresh reconnect should not try to
// complete a frame straddling the old connection).
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
