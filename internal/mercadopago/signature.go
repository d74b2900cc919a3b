package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSignature = errors.New("invalid_webhook_signature")

// Signature is the parsed x-signature header, "ts=<unix>,v1=<hex>".
type Signature struct {
	Timestamp string
	V1        string
}

func ParseSignature(header string) (Signature, error) {
	var sig Signature
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "ts":
			sig.Timestamp = value
		case "v1":
			sig.V1 = value
		}
	}
	if sig.Timestamp == "" || sig.V1 == "" {
		return Signature{}, ErrInvalidSignature
	}
	return sig, nil
}

// VerifySignature checks the webhook HMAC. The signed template is
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;" keyed with the
// webhook secret.
func VerifySignature(secret, header, dataID, requestID string) error {
	if secret == "" || header == "" || requestID == "" {
		return ErrInvalidSignature
	}

	sig, err := ParseSignature(header)
	if err != nil {
		return err
	}

	template := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, sig.Timestamp)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(template))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(sig.V1), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
