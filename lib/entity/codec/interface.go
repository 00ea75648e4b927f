package codec

import "github.com/ValentinKolb/tKV/lib/entity"

// ICodec is the interface for all entity codecs
type ICodec interface {
	// Encode serializes an Entity into a byte array
	// It returns the serialized byte array and an error if any
	Encode(e entity.Entity) ([]byte, error)
	// Decode deserializes a byte array into an Entity
	// It takes a byte array and a pointer to an Entity as parameters
	// It returns an error if any
	Decode(b []byte, e *entity.Entity) error
}
