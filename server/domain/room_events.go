package domain

type roomSendKind uint8

const (
	roomSendUnknown roomSendKind = iota
	roomSendBroadcast
	roomSendTo
	roomSendKick
)

type roomSend struct {
	kind      roomSendKind
	sessionID SessionID
	data      []byte
}
