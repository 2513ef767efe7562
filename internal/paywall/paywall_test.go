package paywall

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	errx "bookgpt/backend/internal/core/error"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() Config {
	return Config{
		OfferingID:      "standard",
		WeeklyProductID: "book_gpt_pro_weekly",
		AnnualProductID: "book_gpt_pro_annual",
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	return NewService(defaultConfig(), catalog)
}

func TestPlansOrderedAndDescribed(t *testing.T) {
	plans := newService(t).Plans()
	require.Len(t, plans, 3)

	assert.Equal(t, "Annual", plans[0].Title)
	assert.Equal(t, "book_gpt_pro_annual", plans[0].ProductID)
	assert.Equal(t, "Billed every 1 year(s)", plans[0].BillingDetail)
	require.NotNil(t, plans[0].TrialDetail)
	assert.Equal(t, "1-week trial", *plans[0].TrialDetail)

	assert.Equal(t, "Weekly", plans[1].Title)
	require.NotNil(t, plans[1].TrialDetail)
	assert.Equal(t, "3-day trial", *plans[1].TrialDetail)

	assert.Equal(t, "Monthly", plans[2].Title)
	assert.Equal(t, "Billed every 1 month(s)", plans[2].BillingDetail)
	assert.Nil(t, plans[2].TrialDetail)
}

func TestPlansFromCustomCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
offerings:
  - id: standard
    packages:
      - id: lifetime
        product_id: book_gpt_lifetime
        type: lifetime
        price: $99.99
`), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	plans := NewService(defaultConfig(), catalog).Plans()

	require.Len(t, plans, 1)
	assert.Equal(t, "Plan", plans[0].Title)
	assert.Equal(t, "Billed $99.99", plans[0].BillingDetail)
}

func TestPlansUnknownOffering(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	cfg := defaultConfig()
	cfg.OfferingID = "holiday"

	assert.Empty(t, NewService(cfg, catalog).Plans())
}

func TestPurchaseAndRestore(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := s.For("alice")

	active, err := alice.RestorePurchases(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = alice.Purchase(ctx, "$rc_monthly")
	require.NoError(t, err)
	assert.False(t, active, "monthly does not unlock the app")

	active, err = alice.Purchase(ctx, "$rc_annual")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = alice.RestorePurchases(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = s.For("bob").RestorePurchases(ctx)
	require.NoError(t, err)
	assert.False(t, active, "entitlements are per customer")
}

func TestPurchaseUnknownPlan(t *testing.T) {
	active, err := newService(t).For("alice").Purchase(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestPurchaseCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(t).For("alice").Purchase(ctx, "$rc_annual")
	assert.ErrorIs(t, err, errx.ErrPurchaseFailed)
}
