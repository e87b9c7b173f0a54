package mailbox

import (
	"zax_relay/internal/model"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same message always
// produces the same stored bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("mailbox: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("mailbox: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeMessage(m *model.StoredMessage) ([]byte, error) {
	return encMode.Marshal(m)
}

func decodeMessage(data []byte) (model.StoredMessage, error) {
	var m model.StoredMessage
	err := decMode.Unmarshal(data, &m)
	return m, err
}
