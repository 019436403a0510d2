package encoding_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reims-io/docflow/internal/encoding"
)

func TestNewUTF8Reader_UTF8Passthrough(t *testing.T) {
	// Valid UTF-8 with accented tenant names should pass through unchanged.
	input := "unit,tenant,rent\n101,Muñoz,1450\n102,Gérard,1600\n"
	r, err := encoding.NewUTF8Reader(bytes.NewReader([]byte(input)))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
}

func TestNewUTF8Reader_Windows1252(t *testing.T) {
	// Windows-1252 encoded "Muñoz" (ñ = 0xF1), the usual Excel export.
	latin1Bytes := []byte{
		'u', 'n', 'i', 't', ',', 't', 'e', 'n', 'a', 'n', 't', '\n',
		'1', '0', '1', ',', 'M', 'u', 0xF1, 'o', 'z', '\n',
	}

	r, err := encoding.NewUTF8Reader(bytes.NewReader(latin1Bytes))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "unit,tenant\n101,Muñoz\n", string(got))
}

func TestNewUTF8Reader_UTF8BOM(t *testing.T) {
	// UTF-8 BOM (0xEF 0xBB 0xBF) should be stripped.
	bom := []byte{0xEF, 0xBB, 0xBF}
	content := []byte("unit,tenant,rent\n101,Muñoz,1450\n")
	input := append(bom, content...)

	r, err := encoding.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, string(content), string(got))
}

func TestNewUTF8Reader_UTF16LE(t *testing.T) {
	// UTF-16 LE with BOM, as saved by "Unicode Text" in older Excel.
	text := "unit,rent\n"
	input := []byte{0xFF, 0xFE}
	for _, r := range text {
		input = append(input, byte(r), 0x00)
	}

	r, err := encoding.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, text, string(got))
}
