package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmylchreest/companion-api/internal/models"
)

// ========================================
// Defaults Tests
// ========================================

func TestDefaults_OneBundlePerTier(t *testing.T) {
	defaults := Defaults()
	if len(defaults) != len(models.AllTiers) {
		t.Fatalf("len(Defaults()) = %d, want %d", len(defaults), len(models.AllTiers))
	}
	for _, tier := range models.AllTiers {
		if _, ok := defaults[tier]; !ok {
			t.Errorf("missing default limits for %s", tier)
		}
	}
}

func TestDefaults_HigherTiersDominate(t *testing.T) {
	defaults := Defaults()
	quota := func(n int) int {
		if n == Unlimited {
			return 1 << 30
		}
		return n
	}

	for i := 1; i < len(models.AllTiers); i++ {
		lower := defaults[models.AllTiers[i-1]]
		higher := defaults[models.AllTiers[i]]
		if quota(higher.DailyMessages) < quota(lower.DailyMessages) {
			t.Errorf("%s daily quota below %s", models.AllTiers[i], models.AllTiers[i-1])
		}
		if higher.SextingMaxLevel < lower.SextingMaxLevel {
			t.Errorf("%s sexting level below %s", models.AllTiers[i], models.AllTiers[i-1])
		}
		if lower.VoiceMessages && !higher.VoiceMessages {
			t.Errorf("%s loses voice messages", models.AllTiers[i])
		}
	}
}

func TestDefaults_FreeValues(t *testing.T) {
	free := Defaults()[models.TierFree]
	if free.DailyMessages != 20 {
		t.Errorf("DailyMessages = %d, want 20", free.DailyMessages)
	}
	if free.MemoryType != MemorySession {
		t.Errorf("MemoryType = %q, want %q", free.MemoryType, MemorySession)
	}
	if free.PriceStarsMonthly != 0 {
		t.Errorf("PriceStarsMonthly = %d, want 0", free.PriceStarsMonthly)
	}
}

// ========================================
// Hierarchy Tests
// ========================================

func TestPlans_Level(t *testing.T) {
	p := New(nil, nil)
	want := map[models.Tier]int{
		models.TierFree:    0,
		models.TierBasic:   1,
		models.TierPremium: 2,
		models.TierVIP:     3,
	}
	for tier, lvl := range want {
		got, ok := p.Level(tier)
		if !ok || got != lvl {
			t.Errorf("Level(%s) = %d, %v; want %d, true", tier, got, ok, lvl)
		}
	}
	if _, ok := p.Level(models.Tier("gold")); ok {
		t.Error("Level(gold) should not be known")
	}
}

func TestPlans_Compare(t *testing.T) {
	p := New(nil, nil)
	if p.Compare(models.TierBasic, models.TierPremium) != -1 {
		t.Error("basic should be below premium")
	}
	if p.Compare(models.TierVIP, models.TierPremium) != 1 {
		t.Error("vip should be above premium")
	}
	if p.Compare(models.TierBasic, models.TierBasic) != 0 {
		t.Error("basic should equal basic")
	}
}

func TestPlans_PaidTiers(t *testing.T) {
	paid := New(nil, nil).PaidTiers()
	if len(paid) != 3 || paid[0] != models.TierBasic || paid[2] != models.TierVIP {
		t.Errorf("PaidTiers() = %v, want [basic premium vip]", paid)
	}
}

// ========================================
// LimitsFor Tests
// ========================================

func TestPlans_LimitsFor(t *testing.T) {
	p := New(nil, nil)

	if got := p.LimitsFor(models.TierPremium).DailyMessages; got != 500 {
		t.Errorf("premium DailyMessages = %d, want 500", got)
	}

	t.Run("missing bundle falls back to free", func(t *testing.T) {
		p := New(nil, nil)
		delete(p.limits, models.TierBasic)
		got := p.LimitsFor(models.TierBasic)
		if got.DisplayName != "Free" {
			t.Errorf("DisplayName = %q, want Free", got.DisplayName)
		}
	})

	t.Run("static overrides replace bundles", func(t *testing.T) {
		p := New(map[models.Tier]TierLimits{
			models.TierFree: {DisplayName: "Starter", DailyMessages: 5},
		}, nil)
		if got := p.LimitsFor(models.TierFree).DailyMessages; got != 5 {
			t.Errorf("DailyMessages = %d, want 5", got)
		}
		if got := p.DisplayName(models.TierFree); got != "Starter" {
			t.Errorf("DisplayName = %q, want Starter", got)
		}
	})
}

func TestTierLimits_AllowsPersona(t *testing.T) {
	defaults := Defaults()
	tests := []struct {
		tier    models.Tier
		persona string
		want    bool
	}{
		{models.TierFree, "aeris_friend", true},
		{models.TierFree, "luneth_basic", false},
		{models.TierBasic, "luneth_basic", true},
		{models.TierPremium, "luneth_advanced", true},
		{models.TierVIP, "anything_new", true},
		{models.TierVIP, "", false},
	}
	for _, tt := range tests {
		if got := defaults[tt.tier].AllowsPersona(tt.persona); got != tt.want {
			t.Errorf("%s.AllowsPersona(%q) = %v, want %v", tt.tier, tt.persona, got, tt.want)
		}
	}
}

func TestTierLimits_FeatureValue(t *testing.T) {
	vip := Defaults()[models.TierVIP]

	if v, ok := vip.FeatureValue(FeatureAIInsights); !ok || v != true {
		t.Errorf("FeatureValue(ai_insights_access) = %v, %v", v, ok)
	}
	if v, ok := vip.FeatureValue(FeatureDailyMessages); !ok || v != Unlimited {
		t.Errorf("FeatureValue(daily_messages) = %v, %v", v, ok)
	}
	if v, ok := vip.FeatureValue("early_access"); !ok || v != true {
		t.Errorf("FeatureValue(early_access) = %v, %v", v, ok)
	}
	if _, ok := vip.FeatureValue("teleportation"); ok {
		t.Error("unknown feature should not be found")
	}
}

// ========================================
// Reload Tests
// ========================================

type fakeSource struct {
	overrides map[models.Tier]TierOverride
	err       error
	stale     bool
}

func (f *fakeSource) Load(ctx context.Context) (map[models.Tier]TierOverride, error) {
	return f.overrides, f.err
}

func (f *fakeSource) NeedsRefresh() bool { return f.stale }

func TestPlans_Reload(t *testing.T) {
	daily := 42
	src := &fakeSource{overrides: map[models.Tier]TierOverride{
		models.TierBasic: {DailyMessages: &daily},
	}}
	p := New(nil, nil).WithSource(src)

	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	basic := p.LimitsFor(models.TierBasic)
	if basic.DailyMessages != 42 {
		t.Errorf("DailyMessages = %d, want 42", basic.DailyMessages)
	}
	if basic.SextingMaxLevel != 5 {
		t.Errorf("SextingMaxLevel = %d, want default 5", basic.SextingMaxLevel)
	}

	t.Run("nil overrides keep current limits", func(t *testing.T) {
		src.overrides = nil
		if err := p.Reload(context.Background()); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		if got := p.LimitsFor(models.TierBasic).DailyMessages; got != 42 {
			t.Errorf("DailyMessages = %d, want 42", got)
		}
	})

	t.Run("source error is returned", func(t *testing.T) {
		src.err = errors.New("boom")
		if err := p.Reload(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if got := p.LimitsFor(models.TierBasic).DailyMessages; got != 42 {
			t.Errorf("DailyMessages = %d, want 42 after failed reload", got)
		}
	})
}

func TestParseOverrides(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		got, err := ParseOverrides([]byte(`{"tiers":{"premium":{"daily_messages":600,"personas_access":["all"]}}}`))
		if err != nil {
			t.Fatalf("ParseOverrides() error = %v", err)
		}
		o, ok := got[models.TierPremium]
		if !ok || o.DailyMessages == nil || *o.DailyMessages != 600 {
			t.Fatalf("premium override = %+v", o)
		}
		applied := o.Apply(Defaults()[models.TierPremium])
		if !applied.AllowsPersona("someone") {
			t.Error("expected wildcard persona access after override")
		}
	})

	t.Run("unknown tier rejected", func(t *testing.T) {
		_, err := ParseOverrides([]byte(`{"tiers":{"platinum":{}}}`))
		if !errors.Is(err, models.ErrUnknownTier) {
			t.Errorf("error = %v, want ErrUnknownTier", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := ParseOverrides([]byte(`{`)); err == nil {
			t.Error("expected error")
		}
	})
}

func TestPlans_ReloadKeepsStaticOverrides(t *testing.T) {
	basic := Defaults()[models.TierBasic]
	basic.SextingMaxLevel = 7
	daily := 42
	src := &fakeSource{overrides: map[models.Tier]TierOverride{
		models.TierBasic: {DailyMessages: &daily},
	}}
	p := New(map[models.Tier]TierLimits{models.TierBasic: basic}, nil).WithSource(src)

	if err := p.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	got := p.LimitsFor(models.TierBasic)
	if got.DailyMessages != 42 || got.SextingMaxLevel != 7 {
		t.Errorf("basic = daily %d sexting %d, want 42 from the source and 7 from construction",
			got.DailyMessages, got.SextingMaxLevel)
	}
}

func TestPlans_OnReload(t *testing.T) {
	daily := 42
	src := &fakeSource{overrides: map[models.Tier]TierOverride{
		models.TierBasic: {DailyMessages: &daily},
	}, stale: true}
	p := New(nil, nil).WithSource(src)

	fired := make(chan struct{}, 4)
	p.OnReload(func(context.Context) { fired <- struct{}{} })

	t.Run("explicit reload", func(t *testing.T) {
		if err := p.Reload(context.Background()); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		select {
		case <-fired:
		default:
			t.Fatal("OnReload hook did not run")
		}
	})

	t.Run("background refresh", func(t *testing.T) {
		p.MaybeRefresh(context.Background())
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("OnReload hook did not run after background refresh")
		}
	})

	t.Run("unchanged source skips hooks", func(t *testing.T) {
		src.overrides = nil
		if err := p.Reload(context.Background()); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
		select {
		case <-fired:
			t.Error("OnReload hook ran although limits did not change")
		default:
		}
	})
}
