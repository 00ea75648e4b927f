package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/tKV/lib/entity"
)

// NewBinaryCodec creates a new codec using a custom binary format
// optimized for speed and efficiency
func NewBinaryCodec() ICodec {
	return &binaryCodecImpl{}
}

// binaryCodecImpl implements ICodec using a custom binary format
type binaryCodecImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasType   byte = 1 << 0
	hasKey    byte = 1 << 1
	hasFields byte = 1 << 2
)

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (c binaryCodecImpl) Encode(e entity.Entity) ([]byte, error) {
	// Calculate total size needed
	totalSize := c.sizeBytes(e)
	result := make([]byte, totalSize)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 1 // Start after flags

	// Handle Type
	if e.Type != "" {
		flags |= hasType
		typeBytes := []byte(e.Type)
		typeLen := len(typeBytes)

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(typeLen))
		pos += 4

		copy(result[pos:pos+typeLen], typeBytes)
		pos += typeLen
	}

	// Handle Key
	if e.Key != "" {
		flags |= hasKey
		keyBytes := []byte(e.Key)
		keyLen := len(keyBytes)

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(keyLen))
		pos += 4

		copy(result[pos:pos+keyLen], keyBytes)
		pos += keyLen
	}

	// Handle Fields
	if e.Fields != nil {
		flags |= hasFields

		// Write field count
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(e.Fields)))
		pos += 4

		// Write name/value pairs
		for name, value := range e.Fields {
			nameBytes := []byte(name)
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(nameBytes)))
			pos += 4
			copy(result[pos:pos+len(nameBytes)], nameBytes)
			pos += len(nameBytes)

			valueBytes := []byte(value)
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(valueBytes)))
			pos += 4
			copy(result[pos:pos+len(valueBytes)], valueBytes)
			pos += len(valueBytes)
		}
	}

	// Set flags byte after knowing which fields are present
	result[0] = flags

	return result, nil
}

func (c binaryCodecImpl) Decode(data []byte, e *entity.Entity) error {
	// Check minimum size (flags)
	if len(data) < 1 {
		return fmt.Errorf("data too short for entity header")
	}

	// Read flags
	flags := data[0]

	// Initialize read position
	pos := 1

	// Read Type if present
	if flags&hasType != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for type length")
		}

		typeLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(typeLen) > len(data) {
			return fmt.Errorf("data too short for type data")
		}

		e.Type = string(data[pos : pos+int(typeLen)])
		pos += int(typeLen)
	} else {
		e.Type = ""
	}

	// Read Key if present
	if flags&hasKey != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for key length")
		}

		keyLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if pos+int(keyLen) > len(data) {
			return fmt.Errorf("data too short for key data")
		}

		e.Key = string(data[pos : pos+int(keyLen)])
		pos += int(keyLen)
	} else {
		e.Key = ""
	}

	// Read Fields if present
	if flags&hasFields != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for field count")
		}

		fieldCount := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		e.Fields = make(map[string]string, fieldCount)
		for i := uint32(0); i < fieldCount; i++ {
			if pos+4 > len(data) {
				return fmt.Errorf("data too short for field name length")
			}
			nameLen := binary.BigEndian.Uint32(data[pos : pos+4])
			pos += 4

			if pos+int(nameLen) > len(data) {
				return fmt.Errorf("data too short for field name")
			}
			name := string(data[pos : pos+int(nameLen)])
			pos += int(nameLen)

			if pos+4 > len(data) {
				return fmt.Errorf("data too short for field value length")
			}
			valueLen := binary.BigEndian.Uint32(data[pos : pos+4])
			pos += 4

			if pos+int(valueLen) > len(data) {
				return fmt.Errorf("data too short for field value")
			}
			e.Fields[name] = string(data[pos : pos+int(valueLen)])
			pos += int(valueLen)
		}
	} else {
		e.Fields = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (c binaryCodecImpl) sizeBytes(e entity.Entity) int {
	// 1 byte for flags
	size := 1

	// Add sizes for fields that require length encoding
	if e.Type != "" {
		size += 4 + len(e.Type) // 4 bytes for length + type string
	}
	if e.Key != "" {
		size += 4 + len(e.Key) // 4 bytes for length + key string
	}
	if e.Fields != nil {
		size += 4 // 4 bytes for field count
		for name, value := range e.Fields {
			size += 4 + len(name)
			size += 4 + len(value)
		}
	}

	return size
}
