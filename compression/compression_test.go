package compression

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_EncodeBelowThresholdStaysPlainJSON(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	codec := NewCodec(cfg)

	encoded, err := codec.Encode(map[string]any{"x": 1}, "payload")
	require.NoError(t, err)
	require.False(t, looksLikeZlib(encoded))
}

func TestCodec_EncodeDisabledNeverCompresses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	codec := NewCodec(cfg)

	big := strings.Repeat("x", 1000)
	encoded, err := codec.Encode(map[string]any{"v": big}, "payload")
	require.NoError(t, err)
	require.False(t, looksLikeZlib(encoded))
}

func TestCodec_EncodeAboveThresholdCompresses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Threshold = 50
	codec := NewCodec(cfg)

	big := strings.Repeat("abc", 200)
	encoded, err := codec.Encode(map[string]any{"v": big}, "payload")
	require.NoError(t, err)
	require.True(t, looksLikeZlib(encoded))
}

func TestCodec_EncodeFieldNotConfiguredSkipsCompression(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Threshold = 10
	cfg.Fields = map[string]bool{"payload": true}
	codec := NewCodec(cfg)

	big := strings.Repeat("abc", 200)
	encoded, err := codec.Encode(map[string]any{"v": big}, "meta")
	require.NoError(t, err)
	require.False(t, looksLikeZlib(encoded))
}

func TestCodec_RoundTripCompressed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Threshold = 10
	codec := NewCodec(cfg)

	type payload struct {
		Value string `json:"value"`
	}
	in := payload{Value: strings.Repeat("héllo wörld ", 50)}

	encoded, err := codec.Encode(in, "payload")
	require.NoError(t, err)
	require.True(t, looksLikeZlib(encoded))

	var out payload
	require.NoError(t, codec.Decode(encoded, &out))
	require.Equal(t, in.Value, out.Value)
}

func TestCodec_DecodeLegacyUncompressedJSON(t *testing.T) {
	codec := NewCodec(DefaultConfig())

	legacy := []byte(`{"value":"plain"}`)
	var out struct {
		Value string `json:"value"`
	}
	require.NoError(t, codec.Decode(legacy, &out))
	require.Equal(t, "plain", out.Value)
}

func TestCodec_ComputeStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Threshold = 10
	codec := NewCodec(cfg)

	big := strings.Repeat("abc", 200)
	stats, err := codec.ComputeStats(map[string]any{"v": big}, "payload")
	require.NoError(t, err)
	require.True(t, stats.WasCompressed)
	require.Less(t, stats.Compressed, stats.Original)
	require.Greater(t, stats.SavingsPercent, 0.0)
}

func TestLooksLikeZlib_RejectsPlainJSON(t *testing.T) {
	require.False(t, looksLikeZlib([]byte(`{"a":1}`)))
	require.False(t, looksLikeZlib([]byte{}))
	require.False(t, looksLikeZlib([]byte{0x01}))
}
