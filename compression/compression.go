// Package compression implements the threshold-gated, self-describing
// codec used to shrink EventRecord payload/context/meta fields before
// they reach persistent storage (spec.md §4.5).
//
// Compression uses DEFLATE via klauspost/compress/zlib, the same family
// the rest of the retrieved pack reaches for whenever a transport needs
// to shrink frames on the wire.
package compression

import (
	"bytes"
	"encoding/json"

	"github.com/klauspost/compress/zlib"

	eventmachine "github.com/tarfin-labs/event-machine"
)

// Config mirrors the `compression.*` keys of spec.md §6.
type Config struct {
	Enabled   bool
	Level     int
	Threshold int
	Fields    map[string]bool
}

// DefaultConfig matches spec.md §6's defaults: off, level 6, threshold
// 100 bytes, applied to payload/context/meta.
func DefaultConfig() Config {
	return Config{
		Enabled:   false,
		Level:     6,
		Threshold: 100,
		Fields:    map[string]bool{"payload": true, "context": true, "meta": true},
	}
}

// Codec implements spec.md §4.5's encode/decode/stats contract.
type Codec struct {
	cfg Config
}

// NewCodec returns a Codec bound to cfg.
func NewCodec(cfg Config) *Codec {
	return &Codec{cfg: cfg}
}

// Stats summarizes the effect of compressing data, per spec.md §4.5.
type Stats struct {
	Original       int
	Compressed     int
	Ratio          float64
	SavingsPercent float64
	WasCompressed  bool
}

// Encode serializes data to JSON and, if field is configured for
// compression and the JSON is at least the threshold size, deflates it
// at the configured level. If the deflated form is not smaller than the
// original, the original JSON bytes are returned instead (spec.md §4.5).
func (c *Codec) Encode(data any, field string) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, eventmachine.NewInvalidDataError("cannot marshal: " + err.Error())
	}

	if !c.cfg.Enabled || !c.cfg.Fields[field] || len(raw) < c.cfg.Threshold {
		return raw, nil
	}

	compressed, err := c.deflate(raw)
	if err != nil {
		return raw, nil
	}
	if len(compressed) >= len(raw) {
		return raw, nil
	}
	return compressed, nil
}

func (c *Codec) deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := c.cfg.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode sniffs the zlib header to decide whether to inflate before
// unmarshaling; legacy uncompressed JSON decodes identically (spec.md
// §4.5 "Legacy uncompressed JSON must decode identically").
func (c *Codec) Decode(raw []byte, out any) error {
	plain, err := c.inflateIfNeeded(raw)
	if err != nil {
		return eventmachine.NewInvalidDataError("corrupt compressed payload: " + err.Error())
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return eventmachine.NewInvalidDataError("not valid JSON: " + err.Error())
	}
	return nil
}

func (c *Codec) inflateIfNeeded(raw []byte) ([]byte, error) {
	if !looksLikeZlib(raw) {
		return raw, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func looksLikeZlib(raw []byte) bool {
	if len(raw) < 2 {
		return false
	}
	// zlib CMF/FLG header: low nibble of the first byte must be 8
	// (deflate method) and the 16-bit header must be a multiple of 31.
	cmf, flg := raw[0], raw[1]
	if cmf&0x0f != 8 {
		return false
	}
	return (int(cmf)*256+int(flg))%31 == 0
}

// ComputeStats reports the effect Encode would have (or did have) on
// data for field.
func (c *Codec) ComputeStats(data any, field string) (Stats, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Stats{}, eventmachine.NewInvalidDataError("cannot marshal: " + err.Error())
	}
	encoded, err := c.Encode(data, field)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{Original: len(raw), Compressed: len(encoded), WasCompressed: looksLikeZlib(encoded)}
	if s.Original > 0 {
		s.Ratio = float64(s.Compressed) / float64(s.Original)
		s.SavingsPercent = (1 - s.Ratio) * 100
	}
	return s, nil
}
