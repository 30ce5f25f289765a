package app

import (
	"context"
	"errors"
	"unicode/utf8"
)

// SelfTestResult reports whether the provider credentials work.
type SelfTestResult struct {
	OK       bool   `json:"ok"`
	Account  string `json:"account,omitempty"`
	Livemode bool   `json:"livemode"`
	Type     string `json:"type,omitempty"`
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
}

// providerErrorDetail is implemented by provider errors that carry a type
// and code.
type providerErrorDetail interface {
	ErrorType() string
	ErrorCode() string
}

// EnvReport is a masked view of the provider configuration.
type EnvReport struct {
	HasStripeKey     bool    `json:"hasStripeKey"`
	StripeKeyPreview *string `json:"stripeKeyPreview"`
	StripeKeyLength  int     `json:"stripeKeyLength"`
	SiteURL          string  `json:"siteUrl"`
}

// Diagnostics answers operator checks.
type Diagnostics struct {
	provider  PaymentProvider
	secretKey string
	siteURL   string
}

// NewDiagnostics creates a Diagnostics.
func NewDiagnostics(provider PaymentProvider, secretKey, siteURL string) *Diagnostics {
	return &Diagnostics{provider: provider, secretKey: secretKey, siteURL: siteURL}
}

// SelfTest retrieves the platform account with the configured key.
func (d *Diagnostics) SelfTest(ctx context.Context) SelfTestResult {
	account, err := d.provider.RetrievePlatformAccount(ctx)
	if err != nil {
		result := SelfTestResult{OK: false, Error: err.Error()}
		var detail providerErrorDetail
		if errors.As(err, &detail) {
			result.Type = detail.ErrorType()
			result.Code = detail.ErrorCode()
		}
		return result
	}
	return SelfTestResult{OK: true, Account: account.ID, Livemode: account.Livemode, Type: account.Type}
}

// Env reports the configuration without leaking the key.
func (d *Diagnostics) Env() EnvReport {
	return EnvReport{
		HasStripeKey:     d.secretKey != "",
		StripeKeyPreview: MaskSecret(d.secretKey),
		StripeKeyLength:  utf8.RuneCountInString(d.secretKey),
		SiteURL:          d.siteURL,
	}
}

// MaskSecret joins the first 6 and last 4 characters of s. Keys shorter than
// that overlap. It returns nil when s is empty.
func MaskSecret(s string) *string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	masked := string(runes[:min(len(runes), 6)]) + "…" + string(runes[max(len(runes)-4, 0):])
	return &masked
}
