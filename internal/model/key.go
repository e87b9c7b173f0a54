package model

type (
	// SessionKeys is the key pair a prior handshake left in the session cache
	// for one client. The relay only reads it.
	SessionKeys struct {
		SessionPriv [KeySize]byte
		ClientPub   [KeySize]byte
	}
)
