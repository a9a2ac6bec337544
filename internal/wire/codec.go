package wire

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes an Entry as the 5-tuple [key, value, term, MID,
// client_src] required by the envelope contract, instead of a JSON object.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([5]interface{}{e.Key, e.Value, e.Term, e.MID, e.ClientSrc})
}

// UnmarshalJSON decodes a 5-tuple back into an Entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var tuple [5]interface{}
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	key, ok := tuple[0].(string)
	if !ok {
		return fmt.Errorf("wire: entry[0] (key) is not a string")
	}
	value, ok := tuple[1].(string)
	if !ok {
		return fmt.Errorf("wire: entry[1] (value) is not a string")
	}
	term, ok := tuple[2].(float64)
	if !ok {
		return fmt.Errorf("wire: entry[2] (term) is not a number")
	}
	mid, ok := tuple[3].(string)
	if !ok {
		return fmt.Errorf("wire: entry[3] (MID) is not a string")
	}
	clientSrc, ok := tuple[4].(string)
	if !ok {
		return fmt.Errorf("wire: entry[4] (client_src) is not a string")
	}
	e.Key, e.Value, e.Term, e.MID, e.ClientSrc = key, value, int(term), mid, clientSrc
	return nil
}

// Encode serializes an Envelope to its wire form. It validates the
// envelope's common fields before handing off to encoding/json, the
// same "check before you serialize" shape the teacher's gobWrapper used
// around encoding/gob (there to warn about unexported fields; here to
// catch an envelope nobody filled in before it hits the socket).
func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, fmt.Errorf("wire: envelope missing type")
	}
	if env.Src == "" {
		return nil, fmt.Errorf("wire: envelope of type %q missing src", env.Type)
	}
	if env.Dst == "" {
		return nil, fmt.Errorf("wire: envelope of type %q missing dst", env.Type)
	}
	return json.Marshal(env)
}

// Decode parses a datagram payload into an Envelope. Malformed input is
// returned as an error; callers on the receive path are expected to
// drop such datagrams silently, per the protocol's error handling design.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("wire: decoded envelope missing type")
	}
	return env, nil
}
