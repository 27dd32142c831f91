//go:build !cgo

package audio

import "errors"

// ErrOpusUnavailable is returned when the binary was built without cgo and
// therefore without libopus.
var ErrOpusUnavailable = errors.New("audio: opus support requires cgo")

type Decoder struct{}

func NewDecoder() (*Decoder, error) { return nil, ErrOpusUnavailable }

func (d *Decoder) Decode([]byte) ([]int16, error) { return nil, ErrOpusUnavailable }

type Encoder struct{}

func NewEncoder() (*Encoder, error) { return nil, ErrOpusUnavailable }

func (e *Encoder) EncodeFrames([]int16) ([][]byte, error) { return nil, ErrOpusUnavailable }
