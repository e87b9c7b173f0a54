package model

import (
	"encoding/json"
)

type (
	// StoredMessage sits in exactly one recipient's mailbox until the
	// recipient deletes it. Data is kept verbatim; the relay never looks inside.
	StoredMessage struct {
		ID    int64           `cbor:"1,keyasint"`
		From  HPK             `cbor:"2,keyasint"`
		Nonce Nonce           `cbor:"3,keyasint"`
		Time  int64           `cbor:"4,keyasint"`
		Data  json.RawMessage `cbor:"5,keyasint"`
	}

	// MessageView is the shape of one download entry.
	MessageView struct {
		ID    int64           `json:"id"`
		Data  json.RawMessage `json:"data"`
		Time  int64           `json:"time"`
		From  string          `json:"from"`
		Nonce string          `json:"nonce"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}
)

func (m *StoredMessage) View() MessageView {
	return MessageView{
		ID:    m.ID,
		Data:  m.Data,
		Time:  m.Time,
		From:  m.From.String(),
		Nonce: m.Nonce.String(),
	}
}
