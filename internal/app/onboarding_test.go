package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surfspotter/payments-service/internal/domain"
	"github.com/surfspotter/payments-service/internal/store"
)

func newTestOnboarding(provider *providerStub, dir *recordingDirectory, policy UnknownSellerPolicy) *OnboardingService {
	return NewOnboardingService(provider, dir, OnboardingConfig{
		SiteURL:       "https://surfspotter.example/",
		Country:       "CH",
		BusinessType:  "individual",
		UnknownSeller: policy,
	}, discardLogger())
}

func TestOnboardCreatesAccountAndLink(t *testing.T) {
	provider := &providerStub{accountID: "acct_9", linkURL: "https://onboard/acct_9"}
	dir := newRecordingDirectory()
	_, err := dir.UpsertSeller(context.Background(), domain.Seller{ID: "photog_1", Name: "Alice Example", Email: "alice@example.com"})
	require.NoError(t, err)
	svc := newTestOnboarding(provider, dir, PolicyRegister)

	url, err := svc.Onboard(context.Background(), "photog_1")
	require.NoError(t, err)
	assert.Equal(t, "https://onboard/acct_9", url)

	seller, err := dir.GetSeller(context.Background(), "photog_1")
	require.NoError(t, err)
	assert.Equal(t, "acct_9", seller.PaymentAccountID)
	assert.Equal(t, "Alice Example", seller.Name)

	require.Len(t, provider.accountReqs, 1)
	assert.Equal(t, domain.ConnectedAccountRequest{
		SellerID:     "photog_1",
		Email:        "alice@example.com",
		Country:      "CH",
		BusinessType: "individual",
	}, provider.accountReqs[0])

	require.Len(t, provider.linkReqs, 1)
	assert.Equal(t, domain.OnboardingLinkRequest{
		AccountID:  "acct_9",
		RefreshURL: "https://surfspotter.example/onboarding/refresh",
		ReturnURL:  "https://surfspotter.example/onboarding/return",
	}, provider.linkReqs[0])
}

func TestOnboardExistingAccountOnlyRequestsLink(t *testing.T) {
	provider := &providerStub{linkURL: "https://onboard/acct_1"}
	dir := newRecordingDirectory()
	_, err := dir.UpsertSeller(context.Background(), domain.Seller{ID: "photog_1", PaymentAccountID: "acct_1"})
	require.NoError(t, err)
	svc := newTestOnboarding(provider, dir, PolicyRegister)

	url, err := svc.Onboard(context.Background(), "photog_1")
	require.NoError(t, err)
	assert.Equal(t, "https://onboard/acct_1", url)
	assert.Empty(t, provider.accountReqs)
	assert.Len(t, provider.linkReqs, 1)
}

func TestOnboardUnknownSellerPolicy(t *testing.T) {
	t.Run("register creates placeholder", func(t *testing.T) {
		provider := &providerStub{accountID: "acct_new", linkURL: "https://onboard/acct_new"}
		dir := newRecordingDirectory()
		svc := newTestOnboarding(provider, dir, PolicyRegister)

		_, err := svc.Onboard(context.Background(), "photog_42")
		require.NoError(t, err)

		seller, err := dir.GetSeller(context.Background(), "photog_42")
		require.NoError(t, err)
		assert.Equal(t, "acct_new", seller.PaymentAccountID)
	})

	t.Run("reject fails fast", func(t *testing.T) {
		provider := &providerStub{accountID: "acct_new"}
		dir := newRecordingDirectory()
		svc := newTestOnboarding(provider, dir, PolicyReject)

		_, err := svc.Onboard(context.Background(), "photog_42")
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Empty(t, provider.accountReqs)

		_, err = dir.GetSeller(context.Background(), "photog_42")
		assert.ErrorIs(t, err, store.ErrSellerNotFound)
	})
}

func TestOnboardMissingSellerID(t *testing.T) {
	provider := &providerStub{}
	svc := newTestOnboarding(provider, newRecordingDirectory(), PolicyRegister)

	_, err := svc.Onboard(context.Background(), "  ")
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Empty(t, provider.accountReqs)
}

func TestOnboardProviderFailures(t *testing.T) {
	t.Run("account creation", func(t *testing.T) {
		provider := &providerStub{accountErr: errors.New("rate limited")}
		dir := newRecordingDirectory()
		svc := newTestOnboarding(provider, dir, PolicyRegister)

		_, err := svc.Onboard(context.Background(), "photog_1")
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "create connected account", pe.Op)
		assert.Empty(t, provider.linkReqs)
	})

	t.Run("link creation keeps the account", func(t *testing.T) {
		provider := &providerStub{accountID: "acct_9", linkErr: errors.New("boom")}
		dir := newRecordingDirectory()
		svc := newTestOnboarding(provider, dir, PolicyRegister)

		_, err := svc.Onboard(context.Background(), "photog_1")
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "create onboarding link", pe.Op)

		seller, err := dir.GetSeller(context.Background(), "photog_1")
		require.NoError(t, err)
		assert.Equal(t, "acct_9", seller.PaymentAccountID)

		// Retrying only the link step succeeds without a second account.
		provider.linkErr = nil
		provider.linkURL = "https://onboard/acct_9"
		url, err := svc.RequestLink(context.Background(), "photog_1")
		require.NoError(t, err)
		assert.Equal(t, "https://onboard/acct_9", url)
		assert.Len(t, provider.accountReqs, 1)
	})
}

func TestRequestLinkPreconditions(t *testing.T) {
	provider := &providerStub{linkURL: "https://onboard/x"}
	dir := newRecordingDirectory()
	_, err := dir.UpsertSeller(context.Background(), domain.Seller{ID: "photog_1"})
	require.NoError(t, err)
	svc := newTestOnboarding(provider, dir, PolicyRegister)

	_, err = svc.RequestLink(context.Background(), "photog_1")
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))

	_, err = svc.RequestLink(context.Background(), "missing")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))

	assert.Empty(t, provider.linkReqs)
}
