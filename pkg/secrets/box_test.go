package secrets

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBox(t *testing.T) *Box {
	t.Helper()
	b, err := NewBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return b
}

func TestBox(t *testing.T) {
	t.Run("Seal And Open", func(t *testing.T) {
		b := testBox(t)
		sealed, err := b.Seal("20% off everything")
		require.NoError(t, err)
		assert.NotContains(t, sealed, "off everything")

		plain, err := b.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, "20% off everything", plain)
	})

	t.Run("Nonce Differs Per Seal", func(t *testing.T) {
		b := testBox(t)
		first, _ := b.Seal("same")
		second, _ := b.Seal("same")
		assert.NotEqual(t, first, second)
	})

	t.Run("Empty Passes Through", func(t *testing.T) {
		b := testBox(t)
		sealed, err := b.Seal("")
		require.NoError(t, err)
		assert.Empty(t, sealed)
		plain, err := b.Open("")
		require.NoError(t, err)
		assert.Empty(t, plain)
	})

	t.Run("Wrong Key", func(t *testing.T) {
		sealed, _ := testBox(t).Seal("code")
		other, _ := NewBox(bytes.Repeat([]byte{8}, 32))
		_, err := other.Open(sealed)
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := testBox(t).Open("not base64!")
		assert.ErrorIs(t, err, ErrInvalidCiphertext)
	})

	t.Run("Coupon Secret", func(t *testing.T) {
		b := testBox(t)
		sealed, err := b.SealSecret(CouponSecret{Code: "ABCD-1234", CVV: "123", CardExpiry: "12/27"})
		require.NoError(t, err)

		secret, err := b.OpenSecret(sealed)
		require.NoError(t, err)
		assert.Equal(t, "ABCD-1234", secret.Code)
		assert.Equal(t, "123", secret.CVV)
		assert.Equal(t, "12/27", secret.CardExpiry)
	})
}

func TestNewBox(t *testing.T) {
	t.Run("Short Key", func(t *testing.T) {
		_, err := NewBox([]byte("short"))
		assert.Error(t, err)
	})

	t.Run("Base64", func(t *testing.T) {
		b, err := NewBoxFromBase64(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32)))
		require.NoError(t, err)
		assert.NotNil(t, b)
	})
}
