package totp

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base32 of the RFC 6238 SHA-1 seed "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestComputeCodeRFC6238VectorsSHA1(t *testing.T) {
	tests := []struct {
		unixTime int64
		want     string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, tc := range tests {
		got, err := ComputeCode(rfcSecret, time.Unix(tc.unixTime, 0).UTC())
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "time=%d", tc.unixTime)
	}
}

func TestComputeCodeIsSixDigits(t *testing.T) {
	start := time.Unix(1700000000, 0)
	for i := 0; i < 200; i++ {
		code, err := ComputeCode("JBSWY3DPEHPK3PXP", start.Add(time.Duration(i)*Period*time.Second))
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			require.True(t, c >= '0' && c <= '9', "non-digit in %q", code)
		}
	}
}

func TestComputeCodeDeterministic(t *testing.T) {
	at := time.Now()
	first, err := ComputeCode("JBSWY3DPEHPK3PXP", at)
	require.NoError(t, err)
	second, err := ComputeCode("JBSWY3DPEHPK3PXP", at)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeCodeSameStepSameCode(t *testing.T) {
	stepStart := time.Unix(1234567890/Period*Period, 0)

	first, err := ComputeCode(rfcSecret, stepStart)
	require.NoError(t, err)
	last, err := ComputeCode(rfcSecret, stepStart.Add(29*time.Second+999*time.Millisecond))
	require.NoError(t, err)
	next, err := ComputeCode(rfcSecret, stepStart.Add(Period*time.Second))
	require.NoError(t, err)

	assert.Equal(t, first, last)
	assert.NotEqual(t, first, next)
}

func TestComputeCodeNormalizesSecret(t *testing.T) {
	at := time.Unix(59, 0)
	lower, err := ComputeCode("  gezdgnbvgy3tqojqgezdgnbvgy3tqojq ", at)
	require.NoError(t, err)
	padded, err := ComputeCode("JBSWY3DPEHPK3PXP====", at)
	require.NoError(t, err)
	unpadded, err := ComputeCode("JBSWY3DPEHPK3PXP", at)
	require.NoError(t, err)

	assert.Equal(t, "287082", lower)
	assert.Equal(t, unpadded, padded)
}

func TestComputeCodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   error
	}{
		{name: "empty", secret: "", want: ErrInvalidSecret},
		{name: "blank", secret: "   ", want: ErrInvalidSecret},
		{name: "not base32", secret: "!!!invalid!!!", want: ErrInvalidSecret},
		{name: "digits outside alphabet", secret: "ABCDEFG1", want: ErrInvalidSecret},
		{name: "only padding", secret: "========", want: ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeCode(tt.secret, time.Now())
			if !errors.Is(err, tt.want) {
				t.Fatalf("ComputeCode(%q) error = %v, want %v", tt.secret, err, tt.want)
			}
		})
	}
}

func TestComputeCodeForKey(t *testing.T) {
	key, err := otp.NewKeyFromURL("otpauth://totp/Example:alice?secret=" + rfcSecret + "&digits=8&period=30")
	require.NoError(t, err)

	code, err := ComputeCodeForKey(key, time.Unix(59, 0))
	require.NoError(t, err)
	assert.Equal(t, "94287082", code)

	key, err = otp.NewKeyFromURL("otpauth://totp/Example:alice?secret=" + rfcSecret)
	require.NoError(t, err)
	code, err = ComputeCodeForKey(key, time.Unix(1111111109, 0))
	require.NoError(t, err)
	assert.Equal(t, "081804", code)

	_, err = ComputeCodeForKey(nil, time.Now())
	assert.ErrorIs(t, err, ErrInvalidSecret)
}
