package codec

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/tKV/lib/entity"
)

// NewGOBCodec creates a new codec using Go's binary gob format
func NewGOBCodec() ICodec {
	return &gobCodecImpl{}
}

// gobCodecImpl implements the ICodec interface using gob encoding
type gobCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (g gobCodecImpl) Encode(e entity.Entity) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobCodecImpl) Decode(b []byte, e *entity.Entity) error {
	buf := bytes.NewBuffer(b)
	dec := gob.NewDecoder(buf)
	return dec.Decode(e)
}
