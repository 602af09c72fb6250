package isolate

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func init() {
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// RegisterType makes a concrete type transferable when it travels inside an
// argument or result. It must be called before the type is first used.
func RegisterType(value any) {
	gob.Register(value)
}

// envelope carries values across the context boundary. Wrapping them in a
// struct lets gob record the dynamic type of every element.
type envelope struct {
	Values []any
}

func encodeValues(values []any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{Values: values}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValues(data []byte) ([]any, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, err
	}
	return env.Values, nil
}

func encodeValue(value any) ([]byte, error) {
	return encodeValues([]any{value})
}

func decodeValue(data []byte) (any, error) {
	values, err := decodeValues(data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("expected one value, decoded %d", len(values))
	}
	return values[0], nil
}

// Clone returns a deep copy of value produced the same way values are
// transferred between contexts.
func Clone(value any) (any, error) {
	data, err := encodeValue(value)
	if err != nil {
		return nil, err
	}
	return decodeValue(data)
}

// encodeBatch serializes the arguments of every task before any context is
// acquired, so a batch with an untransferable argument never starts.
func encodeBatch(batch []TaskSpec) ([][]byte, error) {
	payloads := make([][]byte, len(batch))
	for i, spec := range batch {
		data, err := encodeValues(spec.Args)
		if err != nil {
			return nil, &TransferError{Index: i, Direction: "argument", Err: err}
		}
		payloads[i] = data
	}
	return payloads, nil
}
