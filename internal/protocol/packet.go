package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed 12-byte binary packet header: magic, command,
// argument-region length, all big-endian.
const HeaderSize = 12

// MaxArgs bounds the number of NUL-separated fields a binary packet may
// carry. The final argument is unterminated and occupies the remainder
// of the argument region.
const MaxArgs = 8

var argSep = []byte{0}

// ErrTooManyArgs is returned when encoding a packet with more than
// MaxArgs arguments.
var ErrTooManyArgs = errors.New("protocol: too many arguments")

// ErrShortHeader is returned when a caller hands Decode fewer than
// HeaderSize bytes.
var ErrShortHeader = errors.New("protocol: short header")

// ErrBadMagic is returned when a header's magic field is neither REQ nor RES.
var ErrBadMagic = errors.New("protocol: bad magic")

// Packet is a fully parsed binary frame: a magic direction, a command,
// and its arguments split on NUL. Args[len(Args)-1] never had a
// terminator on the wire.
type Packet struct {
	Magic   Magic
	Command Command
	Args    [][]byte
}

// New builds a Packet from a command and its raw argument fields.
func New(magic Magic, cmd Command, args ...[]byte) Packet {
	return Packet{Magic: magic, Command: cmd, Args: args}
}

// Arg returns the i-th argument, or nil if it doesn't exist.
func (p Packet) Arg(i int) []byte {
	if i < 0 || i >= len(p.Args) {
		return nil
	}
	return p.Args[i]
}

// ArgString is Arg as a string.
func (p Packet) ArgString(i int) string {
	return string(p.Arg(i))
}

// EncodeHeader writes the 12-byte header for a payload of the given length.
func EncodeHeader(magic Magic, cmd Command, argLen int) ([]byte, error) {
	header := make([]byte, HeaderSize)
	switch magic {
	case MagicReq:
		copy(header[0:4], reqBytes[:])
	case MagicRes:
		copy(header[0:4], resBytes[:])
	default:
		return nil, ErrBadMagic
	}
	binary.BigEndian.PutUint32(header[4:8], uint32(cmd))
	binary.BigEndian.PutUint32(header[8:12], uint32(argLen))
	return header, nil
}

// Encode serializes a packet to its full wire form: header followed by
// NUL-joined arguments (the last argument unterminated).
func Encode(p Packet) ([]byte, error) {
	if len(p.Args) > MaxArgs {
		return nil, ErrTooManyArgs
	}
	body := bytes.NewBuffer(nil)
	for i, arg := range p.Args {
		body.Write(arg)
		if i != len(p.Args)-1 {
			body.Write(argSep)
		}
	}
	header, err := EncodeHeader(p.Magic, p.Command, body.Len())
	if err != nil {
		return nil, err
	}
	return append(header, body.Bytes()...), nil
}

// DecodeHeader parses the fixed header, returning the magic, command and
// the length of the argument region that follows.
func DecodeHeader(header []byte) (Magic, Command, uint32, error) {
	if len(header) < HeaderSize {
		return 0, 0, 0, ErrShortHeader
	}
	var magic Magic
	switch {
	case bytes.Equal(header[0:4], reqBytes[:]):
		magic = MagicReq
	case bytes.Equal(header[0:4], resBytes[:]):
		magic = MagicRes
	default:
		return 0, 0, 0, ErrBadMagic
	}
	cmd := Command(binary.BigEndian.Uint32(header[4:8]))
	argLen := binary.BigEndian.Uint32(header[8:12])
	return magic, cmd, argLen, nil
}

// DecodeArgs splits an argument region into at most MaxArgs fields. The
// first MaxArgs-1 splits happen on NUL; anything left over (including
// embedded NULs) becomes the final argument verbatim.
func DecodeArgs(region []byte) [][]byte {
	if len(region) == 0 {
		return nil
	}
	parts := bytes.SplitN(region, argSep, MaxArgs)
	return parts
}

// Decode parses a full packet from a header plus its argument region.
func Decode(header []byte, argRegion []byte) (Packet, error) {
	magic, cmd, argLen, err := DecodeHeader(header)
	if err != nil {
		return Packet{}, err
	}
	if uint32(len(argRegion)) != argLen {
		return Packet{}, fmt.Errorf("protocol: arg region length mismatch: header says %d, got %d", argLen, len(argRegion))
	}
	return Packet{Magic: magic, Command: cmd, Args: DecodeArgs(argRegion)}, nil
}
