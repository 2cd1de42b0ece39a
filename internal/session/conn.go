// Package session implements the per-connection protocol state
// machine: reading binary REQ frames or TEXT admin lines off a
// net.Conn, dispatching them against a *broker.Broker, and writing
// RES frames back. It attaches a worker and/or a client identity to a
// connection lazily, as the commands it receives call for them.
package session

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bossjones/gearman-server/internal/protocol"
)

// peekReader lets Serve sniff the first 4 bytes of a connection to
// decide between the binary and TEXT protocols without consuming them.
type peekReader struct {
	r *bufio.Reader
}

func newPeekReader(r io.Reader) *peekReader {
	return &peekReader{r: bufio.NewReaderSize(r, 4096)}
}

// sniffMagic reports which protocol the connection is speaking, based
// on whether the next 4 bytes match a binary magic string.
func (p *peekReader) sniffMagic() (protocol.Magic, error) {
	head, err := p.r.Peek(4)
	if err != nil {
		return 0, err
	}
	switch string(head) {
	case "\x00REQ":
		return protocol.MagicReq, nil
	case "\x00RES":
		return protocol.MagicRes, nil
	default:
		return protocol.MagicText, nil
	}
}

// readPacket reads one full binary frame: the fixed header, then
// exactly as many bytes as it declares for the argument region.
func readPacket(r *bufio.Reader) (protocol.Packet, error) {
	header := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return protocol.Packet{}, err
	}
	_, _, argLen, err := protocol.DecodeHeader(header)
	if err != nil {
		return protocol.Packet{}, err
	}
	body := make([]byte, argLen)
	if argLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return protocol.Packet{}, err
		}
	}
	return protocol.Decode(header, body)
}

// readTextLine reads one TEXT-protocol line (without its trailing
// newline), which the binary sniff has already confirmed isn't a REQ
// or RES frame.
func readTextLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && len(line) == 0 {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// writePacket writes a full RES frame to w.
func writePacket(w io.Writer, p protocol.Packet) error {
	data, err := protocol.Encode(p)
	if err != nil {
		return fmt.Errorf("session: encode packet: %w", err)
	}
	_, err = w.Write(data)
	return err
}
