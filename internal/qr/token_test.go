package qr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentTokenRoundTrip(t *testing.T) {
	tok := NewAssignmentToken("loan-1", "user-1")
	encoded, err := tok.Encode()
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, tok, decoded)
}

func TestReturnTokenRoundTrip(t *testing.T) {
	tok := NewReturnToken("loan-1", "proj-1", "user-1")
	encoded, err := tok.Encode()
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, KindReturn, decoded.Kind)
	assert.Equal(t, tok, decoded)
}

func TestDecodeBareIDFallback(t *testing.T) {
	decoded, err := Decode("loan-42")
	require.NoError(t, err)
	assert.Equal(t, KindAssignment, decoded.Kind)
	assert.Equal(t, "loan-42", decoded.LoanID)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"whitespace":      "   ",
		"broken json":     `{"kind":"assignment"`,
		"unknown kind":    `{"kind":"transfer","loan_id":"loan-1"}`,
		"missing loan":    `{"kind":"assignment"}`,
		"partial return":  `{"kind":"return","loan_id":"loan-1"}`,
		"wrong structure": `{"kind":{"nested":true}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(payload)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
