package codec

import (
	"encoding/json"

	"github.com/ValentinKolb/tKV/lib/entity"
)

// NewJSONCodec creates a new codec using json encoding
func NewJSONCodec() ICodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the ICodec interface using json encoding
type jsonCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Encode(e entity.Entity) ([]byte, error) {
	return json.Marshal(e)
}

func (j jsonCodecImpl) Decode(b []byte, e *entity.Entity) error {
	return json.Unmarshal(b, e)
}
