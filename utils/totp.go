package utils

import (
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
)

const totpIssuer = "Budget Sync"

// GenerateTOTPSecret provisions a fresh 2FA secret for an account. It returns
// the base32 secret to persist alongside the user and the otpauth:// URL the
// client renders as a QR code during setup.
func GenerateTOTPSecret(email string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: email,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// VerifyTOTP checks a one-time code against the stored secret. Used both when
// enabling 2FA and on every login once it is enabled.
func VerifyTOTP(secret, code string) bool {
	return totp.Validate(strings.TrimSpace(code), secret)
}
