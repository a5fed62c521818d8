package fs

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/bft-labs/telship/internal/domain"
)

const envelopeVersion = 1

// envelope is the on-disk form of a transmission. Integer keys keep the
// header a few bytes long next to the payload.
type envelope struct {
	Version         int    `cbor:"1,keyasint"`
	CreatedAt       int64  `cbor:"2,keyasint"`
	ContentType     string `cbor:"3,keyasint"`
	ContentEncoding string `cbor:"4,keyasint"`
	Content         []byte `cbor:"5,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("fs: CBOR encoder initialization failed: " + err.Error())
	}
}

func encodeEnvelope(t *domain.Transmission, now time.Time) ([]byte, error) {
	data, err := encMode.Marshal(envelope{
		Version:         envelopeVersion,
		CreatedAt:       now.UnixNano(),
		ContentType:     t.ContentType(),
		ContentEncoding: t.ContentEncoding(),
		Content:         t.Content(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode transmission: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (*domain.Transmission, time.Time, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode transmission: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, time.Time{}, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if env.Content == nil {
		env.Content = []byte{}
	}
	t, err := domain.NewTransmission(env.Content, env.ContentType, env.ContentEncoding)
	if err != nil {
		return nil, time.Time{}, err
	}
	return t, time.Unix(0, env.CreatedAt), nil
}
