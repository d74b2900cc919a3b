package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signedHeader(secret, dataID, requestID, ts string) string {
	template := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(template))
	return fmt.Sprintf("ts=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec-test"
	header := signedHeader(secret, "presub-1", "req-9", "1719792000")

	assert.NoError(t, VerifySignature(secret, header, "presub-1", "req-9"))

	// Tampered data id.
	assert.ErrorIs(t, VerifySignature(secret, header, "presub-2", "req-9"), ErrInvalidSignature)

	// Wrong secret.
	assert.ErrorIs(t, VerifySignature("other", header, "presub-1", "req-9"), ErrInvalidSignature)

	// Missing inputs.
	assert.ErrorIs(t, VerifySignature(secret, "", "presub-1", "req-9"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(secret, header, "presub-1", ""), ErrInvalidSignature)
}

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature("ts=1719792000,v1=abcdef")
	assert.NoError(t, err)
	assert.Equal(t, "1719792000", sig.Timestamp)
	assert.Equal(t, "abcdef", sig.V1)

	// Unknown keys and spacing tolerated.
	sig, err = ParseSignature(" ts=1 , v2=zz , v1=aa ")
	assert.NoError(t, err)
	assert.Equal(t, "1", sig.Timestamp)
	assert.Equal(t, "aa", sig.V1)

	_, err = ParseSignature("v1=only")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	_, err = ParseSignature("")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
