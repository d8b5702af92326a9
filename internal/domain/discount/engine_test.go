package discount

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
)

// --- Mock implementations ---

type mockRuleRepo struct {
	rules      []AutoRule
	bundles    []BundleRule
	rulesErr   error
	bundlesErr error
	calls      atomic.Int32
}

func (m *mockRuleRepo) FindActiveAutoDiscounts(_ context.Context, _ time.Time) ([]AutoRule, error) {
	m.calls.Add(1)
	// Return a copy: the engine sorts in place.
	return append([]AutoRule(nil), m.rules...), m.rulesErr
}

func (m *mockRuleRepo) FindActiveBundles(_ context.Context) ([]BundleRule, error) {
	return m.bundles, m.bundlesErr
}

type mockCatalog struct {
	products map[string]catalog.Product
	err      error
	calls    int
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, repo *mockRuleRepo, products *mockCatalog) *Engine {
	t.Helper()
	if products == nil {
		products = &mockCatalog{}
	}
	e, err := NewEngine(repo, products, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return e
}

func rule(id string, priority int, stackable bool, terms Terms) AutoRule {
	return AutoRule{
		ID:        id,
		Title:     "rule " + id,
		Terms:     terms,
		Priority:  priority,
		Stackable: stackable,
		Active:    true,
	}
}

var threeUnits = []Item{
	{ProductID: "p1", UnitPrice: d("100"), Quantity: 1},
	{ProductID: "p2", UnitPrice: d("150"), Quantity: 1},
	{ProductID: "p3", UnitPrice: d("200"), Quantity: 1},
}

// --- Tests ---

func TestResolve_NonStackableStopsEvaluation(t *testing.T) {
	repo := &mockRuleRepo{rules: []AutoRule{
		rule("b", 5, true, Fixed{Amount: d("20")}),
		rule("a", 10, false, Percentage{Percent: d("10")}),
	}}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "rule a", res.Applied[0].Title)
	assert.Equal(t, KindPercentage, res.Applied[0].Type)
	assert.True(t, d("45").Equal(res.Total))
}

func TestResolve_StackableRulesAccumulate(t *testing.T) {
	repo := &mockRuleRepo{rules: []AutoRule{
		rule("a", 10, true, Percentage{Percent: d("10")}),
		rule("b", 5, true, Fixed{Amount: d("20")}),
	}}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 2)
	assert.True(t, d("65").Equal(res.Total))

	// Reversed priorities give the same sum.
	repo.rules[0].Priority, repo.rules[1].Priority = 5, 10
	res, err = e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	assert.Equal(t, "rule b", res.Applied[0].Title)
	assert.True(t, d("65").Equal(res.Total))
}

func TestResolve_EqualPriorityOrderedByID(t *testing.T) {
	repo := &mockRuleRepo{rules: []AutoRule{
		rule("r2", 1, false, Fixed{Amount: d("5")}),
		rule("r1", 1, false, Fixed{Amount: d("7")}),
	}}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "rule r1", res.Applied[0].Title)
}

func TestResolve_ZeroAmountRuleDoesNotStop(t *testing.T) {
	// Non-stackable buy-x-get-y that cannot form a group is skipped, so the
	// next rule is still evaluated.
	repo := &mockRuleRepo{rules: []AutoRule{
		rule("bxgy", 10, false, BuyXGetY{Buy: 5, Get: 1, DiscountPercent: pct("100")}),
		rule("fixed", 1, false, Fixed{Amount: d("30")}),
	}}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "rule fixed", res.Applied[0].Title)
}

func TestResolve_ZeroPercentBuyXGetYSkipped(t *testing.T) {
	repo := &mockRuleRepo{rules: []AutoRule{
		rule("bxgy", 10, false, BuyXGetY{Buy: 2, Get: 1, DiscountPercent: pct("0")}),
		rule("fixed", 1, false, Fixed{Amount: d("30")}),
	}}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "rule fixed", res.Applied[0].Title)
	assert.True(t, d("30").Equal(res.Total))
}

func TestResolve_BuyXGetY(t *testing.T) {
	repo := &mockRuleRepo{rules: []AutoRule{
		rule("bxgy", 1, true, BuyXGetY{Buy: 2, Get: 1, DiscountPercent: pct("100")}),
	}}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, KindBuyXGetY, res.Applied[0].Type)
	assert.True(t, d("100").Equal(res.Total))

	res, err = e.Resolve(context.Background(), threeUnits[:2], d("250"))
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.True(t, d("0").Equal(res.Total))
}

func TestResolve_BundlesIgnoreStacking(t *testing.T) {
	repo := &mockRuleRepo{
		rules: []AutoRule{rule("a", 10, false, Fixed{Amount: d("10")})},
		bundles: []BundleRule{
			{ID: "b1", Title: "duo", Products: []string{"p1", "p2"}, Terms: Percentage{Percent: d("10")}, Active: true},
			{ID: "b2", Title: "trio", Products: []string{"p1", "p2", "p3"}, Terms: Fixed{Amount: d("15")}, Active: true},
			{ID: "b3", Title: "absent", Products: []string{"p9"}, Terms: Fixed{Amount: d("15")}, Active: true},
		},
	}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 3)
	assert.Equal(t, Kind("bundle_percentage"), res.Applied[1].Type)
	assert.True(t, d("25").Equal(res.Applied[1].Amount), "ten percent of p1+p2 only")
	assert.Equal(t, Kind("bundle_fixed"), res.Applied[2].Type)
	assert.True(t, d("50").Equal(res.Total))
}

func TestResolve_TotalCappedAtSubtotal(t *testing.T) {
	repo := &mockRuleRepo{
		rules: []AutoRule{
			rule("a", 2, true, Fixed{Amount: d("400")}),
			rule("b", 1, true, Percentage{Percent: d("90")}),
		},
	}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 2)
	assert.True(t, d("450").Equal(res.Total))
}

func TestResolve_CategoriesResolvedOnceWhenNeeded(t *testing.T) {
	cat := &mockCatalog{products: map[string]catalog.Product{
		"p1": {ID: "p1", Categories: []string{"care"}},
		"p2": {ID: "p2", Categories: []string{"styling"}},
	}}
	care := rule("care", 2, true, Fixed{Amount: d("10")})
	care.Conditions.RequiredCategories = []string{"care"}
	both := rule("both", 1, true, Fixed{Amount: d("5")})
	both.Conditions.RequiredCategories = []string{"care", "styling"}
	missing := rule("missing", 0, true, Fixed{Amount: d("1")})
	missing.Conditions.RequiredCategories = []string{"perfume"}

	repo := &mockRuleRepo{rules: []AutoRule{care, both, missing}}
	e := newTestEngine(t, repo, cat)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	assert.Len(t, res.Applied, 2)
	assert.Equal(t, 1, cat.calls)
}

func TestResolve_CategoriesNotResolvedWithoutCategoryRules(t *testing.T) {
	cat := &mockCatalog{}
	repo := &mockRuleRepo{rules: []AutoRule{rule("a", 1, true, Fixed{Amount: d("1")})}}
	e := newTestEngine(t, repo, cat)

	_, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	assert.Zero(t, cat.calls)
}

func TestResolve_IgnoresRulesOutsideWindow(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	expired := rule("expired", 3, true, Fixed{Amount: d("1")})
	expired.ExpiresAt = &past
	pending := rule("pending", 2, true, Fixed{Amount: d("2")})
	pending.StartsAt = &future
	disabled := rule("disabled", 1, true, Fixed{Amount: d("3")})
	disabled.Active = false
	live := rule("live", 0, true, Fixed{Amount: d("4")})
	live.StartsAt, live.ExpiresAt = &past, &future

	e := newTestEngine(t, &mockRuleRepo{rules: []AutoRule{expired, pending, disabled, live}}, nil)

	res, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, "rule live", res.Applied[0].Title)
}

func TestResolve_EmptyCartSkipsRepository(t *testing.T) {
	repo := &mockRuleRepo{rules: []AutoRule{rule("a", 1, true, Fixed{Amount: d("1")})}}
	e := newTestEngine(t, repo, nil)

	res, err := e.Resolve(context.Background(), nil, d("0"))
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.True(t, res.Total.IsZero())
	assert.Zero(t, repo.calls.Load())
}

func TestResolve_Idempotent(t *testing.T) {
	repo := &mockRuleRepo{
		rules: []AutoRule{
			rule("a", 2, true, Percentage{Percent: d("5")}),
			rule("b", 1, true, BuyXGetY{Buy: 1, Get: 1, DiscountPercent: pct("50")}),
		},
		bundles: []BundleRule{{ID: "x", Title: "x", Products: []string{"p1"}, Terms: Fixed{Amount: d("3")}, Active: true}},
	}
	e := newTestEngine(t, repo, nil)

	first, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)
	second, err := e.Resolve(context.Background(), threeUnits, d("450"))
	require.NoError(t, err)

	assert.Equal(t, first.Applied, second.Applied)
	assert.True(t, first.Total.Equal(second.Total))
}

func TestResolve_RepositoryErrors(t *testing.T) {
	t.Run("rules", func(t *testing.T) {
		e := newTestEngine(t, &mockRuleRepo{rulesErr: errors.New("db down")}, nil)
		_, err := e.Resolve(context.Background(), threeUnits, d("450"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find active auto discounts")
	})
	t.Run("bundles", func(t *testing.T) {
		e := newTestEngine(t, &mockRuleRepo{bundlesErr: errors.New("db down")}, nil)
		_, err := e.Resolve(context.Background(), threeUnits, d("450"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find active bundles")
	})
	t.Run("categories", func(t *testing.T) {
		r := rule("c", 1, true, Fixed{Amount: d("1")})
		r.Conditions.RequiredCategories = []string{"care"}
		e := newTestEngine(t, &mockRuleRepo{rules: []AutoRule{r}}, &mockCatalog{err: errors.New("timeout")})
		_, err := e.Resolve(context.Background(), threeUnits, d("450"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolve categories")
	})
}

func TestSortRules(t *testing.T) {
	rules := []AutoRule{
		{ID: "c", Priority: 1},
		{ID: "b", Priority: 5},
		{ID: "a", Priority: 1},
		{ID: "d", Priority: 5},
	}
	SortRules(rules)

	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
}
