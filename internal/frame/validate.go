package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrEmptyPayload is returned for a zero-length frame.
var ErrEmptyPayload = errors.New("frame: empty payload")

// Validator checks that a payload is ready to be shown.
type Validator interface {
	Validate(payload []byte) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(payload []byte) error

func (f ValidatorFunc) Validate(payload []byte) error { return f(payload) }

// DecodeValidator fully decodes the payload with the registered image
// decoders (JPEG, PNG, GIF, BMP, WebP).
type DecodeValidator struct{}

func (DecodeValidator) Validate(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("frame: decode: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("frame: %s image has zero size", format)
	}
	return nil
}
