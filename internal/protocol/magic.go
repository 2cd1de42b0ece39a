// Package protocol implements the wire framing for the broker's binary
// and administrative TEXT protocols.
package protocol

// Magic identifies which of the two binary packet kinds a header carries,
// or that the connection is speaking the line-based TEXT protocol.
type Magic uint32

const (
	// MagicReq marks a packet sent to the broker (by a client or worker).
	MagicReq Magic = iota + 1
	// MagicRes marks a packet sent by the broker.
	MagicRes
	// MagicText marks the administrative line-based protocol. It never
	// appears in a binary header; connections speaking TEXT are detected
	// by their first bytes not matching either binary magic.
	MagicText
)

// reqBytes and resBytes are the literal 4-byte magic strings on the wire,
// mirroring gearmand's "\0REQ" / "\0RES".
var (
	reqBytes = [4]byte{0, 'R', 'E', 'Q'}
	resBytes = [4]byte{0, 'R', 'E', 'S'}
)

func (m Magic) String() string {
	switch m {
	case MagicReq:
		return "REQ"
	case MagicRes:
		return "RES"
	case MagicText:
		return "TEXT"
	default:
		return "UNKNOWN"
	}
}
