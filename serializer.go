package outbox

import "encoding/json"

// Serializer converts typed payloads to and from their stored form.
type Serializer interface {
	// Encode renders a value into bytes.
	Encode(value any) ([]byte, error)
	// Decode parses bytes into the value pointed to by target.
	Decode(data []byte, target any) error
}

// JSONSerializer stores payloads as JSON. It is the default serializer.
type JSONSerializer struct{}

// Encode implements Serializer.
func (JSONSerializer) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode implements Serializer.
func (JSONSerializer) Decode(data []byte, target any) error {
	return json.Unmarshal(data, target)
}
