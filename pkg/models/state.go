package models

import "strings"

// Socket states as normalized by the connection sources.
const (
	StateEstablished = "ESTABLISHED"
	StateListen      = "LISTEN"
	StateListening   = "LISTENING"
	StateTimeWait    = "TIME_WAIT"
	StateCloseWait   = "CLOSE_WAIT"
	StateSynSent     = "SYN_SENT"
	StateSynRecv     = "SYN_RECV"
	StateFinWait1    = "FIN_WAIT1"
	StateFinWait2    = "FIN_WAIT2"
	StateLastAck     = "LAST_ACK"
	StateClosing     = "CLOSING"
	StateClose       = "CLOSE"
	StateNone        = "NONE"
)

// Protocols.
const (
	ProtocolTCP = "TCP"
	ProtocolUDP = "UDP"
)

// NormalizeState upper-cases a state and folds the spelling variants of the
// various platforms into one vocabulary.
func NormalizeState(state string) string {
	s := strings.ToUpper(strings.TrimSpace(state))
	s = strings.ReplaceAll(s, "-", "_")
	switch s {
	case "":
		return StateNone
	case "LISTEN":
		return StateListening
	case "FIN_WAIT_1":
		return StateFinWait1
	case "FIN_WAIT_2":
		return StateFinWait2
	case "SYN_RECEIVED":
		return StateSynRecv
	case "CLOSED":
		return StateClose
	}
	return s
}

// NormalizeProtocol maps source protocol spellings to TCP or UDP.
func NormalizeProtocol(proto string) string {
	p := strings.ToUpper(strings.TrimSpace(proto))
	switch {
	case strings.HasPrefix(p, "TCP"):
		return ProtocolTCP
	case strings.HasPrefix(p, "UDP"):
		return ProtocolUDP
	}
	return p
}
