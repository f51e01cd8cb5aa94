// internal/app/store/codes/codestore_test.go
package codestore_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	codestore "github.com/dalemusser/renewhub/internal/app/store/codes"
	"github.com/dalemusser/renewhub/internal/domain/models"
	"github.com/dalemusser/renewhub/internal/testutil"
)

func newStore(t *testing.T) *codestore.Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	s := codestore.New(db)
	if err := s.EnsureIndexes(testutil.TestContext(t)); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	return s
}

func seed(t *testing.T, s *codestore.Store, c models.RenewalCode) {
	t.Helper()
	if c.GeneratedTime.IsZero() {
		c.GeneratedTime = time.Now().UTC()
	}
	if err := s.Insert(testutil.TestContext(t), c); err != nil {
		t.Fatalf("Insert %s: %v", c.Code, err)
	}
}

func TestInsertDuplicate(t *testing.T) {
	s := newStore(t)
	seed(t, s, models.RenewalCode{Code: "c1", Length: 1, Unit: models.UnitDay, MaxUse: 1})

	err := s.Insert(testutil.TestContext(t), models.RenewalCode{Code: "c1", Length: 2, Unit: models.UnitDay, MaxUse: 1})
	if !errors.Is(err, codestore.ErrDuplicateCode) {
		t.Fatalf("got %v, want ErrDuplicateCode", err)
	}
}

func TestConsume(t *testing.T) {
	s := newStore(t)
	ctx := testutil.TestContext(t)
	seed(t, s, models.RenewalCode{Code: "c1", Length: 1, Unit: models.UnitMonth, MaxUse: 2})

	now := time.Now().UTC()
	c, err := s.Consume(ctx, "c1", now)
	if err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if c.UseCount != 1 {
		t.Errorf("use_count after first consume: got %d", c.UseCount)
	}

	c, err = s.Consume(ctx, "c1", now)
	if err != nil {
		t.Fatalf("second Consume: %v", err)
	}
	if c.UseCount != 2 {
		t.Errorf("use_count after second consume: got %d", c.UseCount)
	}

	if _, err := s.Consume(ctx, "c1", now); !errors.Is(err, codestore.ErrExhausted) {
		t.Fatalf("third Consume: got %v, want ErrExhausted", err)
	}
}

func TestConsumeConcurrent(t *testing.T) {
	s := newStore(t)
	seed(t, s, models.RenewalCode{Code: "c1", Length: 1, Unit: models.UnitDay, MaxUse: 1})

	now := time.Now().UTC()
	const goroutines = 10
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Consume(testutil.TestContext(t), "c1", now)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("max_use=1 code consumed %d times, want exactly 1", succeeded)
	}
}

func TestConsumeExpired(t *testing.T) {
	s := newStore(t)
	past := time.Now().Add(-time.Hour).UTC()
	seed(t, s, models.RenewalCode{Code: "c1", Length: 1, Unit: models.UnitDay, MaxUse: 5, ExpireAt: &past})

	if _, err := s.Consume(testutil.TestContext(t), "c1", time.Now().UTC()); !errors.Is(err, codestore.ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}
}

func TestConsumeMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Consume(testutil.TestContext(t), "nope", time.Now().UTC()); !errors.Is(err, codestore.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUnconsume(t *testing.T) {
	s := newStore(t)
	ctx := testutil.TestContext(t)
	seed(t, s, models.RenewalCode{Code: "c1", Length: 1, Unit: models.UnitDay, MaxUse: 1})

	now := time.Now().UTC()
	if _, err := s.Consume(ctx, "c1", now); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := s.Unconsume(ctx, "c1"); err != nil {
		t.Fatalf("Unconsume: %v", err)
	}

	// The use came back.
	if _, err := s.Consume(ctx, "c1", now); err != nil {
		t.Fatalf("Consume after Unconsume: %v", err)
	}

	// Nothing left to return.
	if err := s.Unconsume(ctx, "c2"); !errors.Is(err, codestore.ErrNotFound) {
		t.Fatalf("Unconsume unknown: got %v, want ErrNotFound", err)
	}
}

func TestLiveFiltersDeadCodes(t *testing.T) {
	s := newStore(t)
	ctx := testutil.TestContext(t)
	past := time.Now().Add(-time.Hour).UTC()
	future := time.Now().Add(time.Hour).UTC()

	seed(t, s, models.RenewalCode{Code: "live-open", Length: 1, Unit: models.UnitDay, MaxUse: 2, UseCount: 1})
	seed(t, s, models.RenewalCode{Code: "live-dated", Length: 1, Unit: models.UnitDay, MaxUse: 1, ExpireAt: &future})
	seed(t, s, models.RenewalCode{Code: "spent", Length: 1, Unit: models.UnitDay, MaxUse: 1, UseCount: 1})
	seed(t, s, models.RenewalCode{Code: "stale", Length: 1, Unit: models.UnitDay, MaxUse: 1, ExpireAt: &past})

	live, err := s.Live(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("Live: %v", err)
	}
	got := map[string]bool{}
	for _, c := range live {
		got[c.Code] = true
	}
	if len(got) != 2 || !got["live-open"] || !got["live-dated"] {
		t.Errorf("live codes: %v", got)
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := testutil.TestContext(t)
	seed(t, s, models.RenewalCode{Code: "c1", Length: 1, Unit: models.UnitDay, MaxUse: 1})

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "c1"); !errors.Is(err, codestore.ErrNotFound) {
		t.Fatalf("second Delete: got %v, want ErrNotFound", err)
	}
}
