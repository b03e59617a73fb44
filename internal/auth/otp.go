package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// OTPManager produces the 6-digit one-time codes emailed during registration
// and password reset. Each pending verification gets its own random secret;
// codes are derived from it with a coarse time step equal to the validity
// window, so a code stays stable until it expires and is useless afterward.
type OTPManager struct {
	issuer   string
	validity time.Duration
}

func NewOTPManager(issuer string, validity time.Duration) *OTPManager {
	return &OTPManager{issuer: issuer, validity: validity}
}

// GenerateSecret creates a fresh base32 secret for one verification flow.
func (om *OTPManager) GenerateSecret(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      om.issuer,
		AccountName: accountName,
		SecretSize:  20,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// Code derives the current 6-digit code for the secret.
func (om *OTPManager) Code(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, time.Now(), om.validateOpts())
}

// Validate checks a submitted code against the secret. Expiry is enforced
// separately by the caller against the stored deadline; the skew of one
// period here only covers codes generated just before a step boundary.
func (om *OTPManager) Validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now(), om.validateOpts())
	return err == nil && ok
}

func (om *OTPManager) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(om.validity / time.Second),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}
