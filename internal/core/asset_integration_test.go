package core_test

import (
	"strings"
	"sync"
	"testing"

	"inventory-ledger/internal/core"
)

func TestAssetRegistry_Register(t *testing.T) {
	e := setupTestDB(t)

	serial := "SN-42"
	a, err := e.registry.Register(e.ctx, prodLaptop, &serial, "INV-1", nil)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if a.Status != core.StatusInStock {
		t.Errorf("New asset should be IN_STOCK, got %s", a.Status)
	}
	if a.SerialNumber == nil || *a.SerialNumber != serial || a.CurrentLocationID != nil {
		t.Errorf("Unexpected asset fields: %+v", a)
	}

	_, err = e.registry.Register(e.ctx, prodLaptop, nil, "INV-1", nil)
	requireKind(t, err, core.ErrConflict)

	_, err = e.registry.Register(e.ctx, prodPaper, nil, "INV-2", nil)
	requireKind(t, err, core.ErrValidation)

	_, err = e.registry.Register(e.ctx, prodLaptop, nil, "  ", nil)
	requireKind(t, err, core.ErrValidation)

	depot := locDepot
	_, err = e.registry.Register(e.ctx, prodLaptop, nil, "INV-3", &depot)
	requireKind(t, err, core.ErrValidation)

	got, err := e.registry.GetByInventoryNumber(e.ctx, "INV-1")
	if err != nil {
		t.Fatalf("GetByInventoryNumber failed: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("Expected asset %d, got %d", a.ID, got.ID)
	}
	_, err = e.registry.Get(e.ctx, 999)
	requireKind(t, err, core.ErrNotFound)
}

func TestAssetRegistry_MaintenanceCycle(t *testing.T) {
	e := setupTestDB(t)
	a := e.registerLaptop(t)

	a, err := e.registry.SendToMaintenance(e.ctx, a.ID)
	if err != nil {
		t.Fatalf("SendToMaintenance failed: %v", err)
	}
	if a.Status != core.StatusMaintenance {
		t.Fatalf("Expected MAINTENANCE, got %s", a.Status)
	}

	_, err = e.registry.Issue(e.ctx, a.ID)
	requireKind(t, err, core.ErrNotAvailable)
	if !strings.Contains(err.Error(), string(core.StatusMaintenance)) {
		t.Errorf("Error should name current status, got %q", err)
	}

	a, err = e.registry.CompleteMaintenance(e.ctx, a.ID, locWorkshop)
	if err != nil {
		t.Fatalf("CompleteMaintenance failed: %v", err)
	}
	if a.Status != core.StatusInStock || a.CurrentLocationID == nil || *a.CurrentLocationID != locWorkshop {
		t.Errorf("Expected IN_STOCK at workshop, got %+v", a)
	}

	_, err = e.registry.CompleteMaintenance(e.ctx, a.ID, locMain)
	requireKind(t, err, core.ErrNotAvailable)
}

func TestAssetRegistry_WriteOffIsTerminal(t *testing.T) {
	e := setupTestDB(t)
	a := e.registerLaptop(t)

	if _, err := e.registry.WriteOff(e.ctx, a.ID); err != nil {
		t.Fatalf("WriteOff failed: %v", err)
	}
	for name, run := range map[string]func() error{
		"write off again": func() error { _, err := e.registry.WriteOff(e.ctx, a.ID); return err },
		"issue":           func() error { _, err := e.registry.Issue(e.ctx, a.ID); return err },
		"maintenance":     func() error { _, err := e.registry.SendToMaintenance(e.ctx, a.ID); return err },
		"return":          func() error { _, err := e.registry.ReturnToStock(e.ctx, a.ID, locMain); return err },
	} {
		t.Run(name, func(t *testing.T) {
			requireKind(t, run(), core.ErrNotAvailable)
		})
	}
}

// A second checkout of the same asset is refused and names the holder.
func TestIssuanceTracker_SingleActiveIssuance(t *testing.T) {
	e := setupTestDB(t)
	a := e.registerLaptop(t)

	iss, err := e.tracker.CreateIssuance(e.ctx, a.ID, "Alice", "onboarding")
	if err != nil {
		t.Fatalf("CreateIssuance failed: %v", err)
	}
	if !iss.IsActive() || iss.Recipient != "Alice" {
		t.Errorf("Unexpected issuance: %+v", iss)
	}
	got, _ := e.registry.Get(e.ctx, a.ID)
	if got.Status != core.StatusIssued {
		t.Errorf("Expected ISSUED, got %s", got.Status)
	}

	_, err = e.tracker.CreateIssuance(e.ctx, a.ID, "Bob", "")
	requireKind(t, err, core.ErrNotAvailable)
	if !strings.Contains(err.Error(), "Alice") {
		t.Errorf("Error should name the current holder, got %q", err)
	}
	if n := e.count(t, "SELECT COUNT(*) FROM issuances WHERE asset_id = $1", a.ID); n != 1 {
		t.Errorf("Expected exactly one issuance, got %d", n)
	}

	_, err = e.tracker.CreateIssuance(e.ctx, a.ID, " ", "")
	requireKind(t, err, core.ErrValidation)
}

// Returning an already returned issuance is a conflict and changes nothing.
func TestIssuanceTracker_ReturnTwice(t *testing.T) {
	e := setupTestDB(t)
	a := e.registerLaptop(t)

	iss, err := e.tracker.CreateIssuance(e.ctx, a.ID, "Alice", "")
	if err != nil {
		t.Fatalf("CreateIssuance failed: %v", err)
	}
	returned, err := e.tracker.CreateReturn(e.ctx, iss.ID, locWorkshop, "all good")
	if err != nil {
		t.Fatalf("CreateReturn failed: %v", err)
	}
	if returned.IsActive() || returned.ReturnComment != "all good" {
		t.Errorf("Unexpected returned issuance: %+v", returned)
	}
	got, _ := e.registry.Get(e.ctx, a.ID)
	if got.Status != core.StatusInStock || *got.CurrentLocationID != locWorkshop {
		t.Errorf("Expected IN_STOCK at workshop, got %+v", got)
	}

	_, err = e.tracker.CreateReturn(e.ctx, iss.ID, locMain, "again")
	requireKind(t, err, core.ErrConflict)

	history, err := e.tracker.ListForAsset(e.ctx, a.ID)
	if err != nil {
		t.Fatalf("ListForAsset failed: %v", err)
	}
	if len(history) != 1 || history[0].ReturnComment != "all good" || !history[0].ReturnDate.Equal(*returned.ReturnDate) {
		t.Errorf("Returned issuance must not change, got %+v", history)
	}

	_, err = e.tracker.CreateReturn(e.ctx, 999, locMain, "")
	requireKind(t, err, core.ErrNotFound)
}

func TestIssuanceTracker_ReturnToInactiveLocationRollsBack(t *testing.T) {
	e := setupTestDB(t)
	a := e.registerLaptop(t)

	iss, err := e.tracker.CreateIssuance(e.ctx, a.ID, "Alice", "")
	if err != nil {
		t.Fatalf("CreateIssuance failed: %v", err)
	}
	_, err = e.tracker.CreateReturn(e.ctx, iss.ID, locDepot, "")
	requireKind(t, err, core.ErrValidation)

	active, err := e.tracker.ListActive(e.ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != iss.ID {
		t.Errorf("Issuance should still be active after rollback, got %+v", active)
	}
}

func TestIssuanceTracker_FindByRecipient(t *testing.T) {
	e := setupTestDB(t)

	for _, who := range []string{"Anna Petrova", "ANNA_K", "Boris 100%"} {
		a := e.registerLaptop(t)
		if _, err := e.tracker.CreateIssuance(e.ctx, a.ID, who, ""); err != nil {
			t.Fatalf("CreateIssuance failed: %v", err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"anna", 2},
		{"_", 1},
		{"100%", 1},
		{"%", 1},
		{"nobody", 0},
	}
	for _, tt := range tests {
		got, err := e.tracker.FindByRecipient(e.ctx, tt.query)
		if err != nil {
			t.Fatalf("FindByRecipient(%q) failed: %v", tt.query, err)
		}
		if len(got) != tt.want {
			t.Errorf("FindByRecipient(%q) = %d results, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestIssuanceTracker_ConcurrentIssuance(t *testing.T) {
	e := setupTestDB(t)
	a := e.registerLaptop(t)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.tracker.CreateIssuance(e.ctx, a.ID, "racer", "")
			if err != nil && core.KindOf(err) != core.KindNotAvailable {
				t.Errorf("Unexpected error: %v", err)
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("Expected exactly one successful issuance, got %d", succeeded)
	}
	if n := e.count(t, "SELECT COUNT(*) FROM issuances WHERE asset_id = $1 AND return_date IS NULL", a.ID); n != 1 {
		t.Errorf("Expected one active issuance, got %d", n)
	}
}

// A return racing a write-off of the same issued asset serializes on the asset
// row: the write-off always lands and the return either lands first or sees
// the issuance already closed.
func TestIssuanceTracker_ConcurrentReturnAndWriteOff(t *testing.T) {
	e := setupTestDB(t)

	for round := range 5 {
		a := e.registerLaptop(t)
		iss, err := e.tracker.CreateIssuance(e.ctx, a.ID, "Alice", "")
		if err != nil {
			t.Fatalf("round %d: CreateIssuance failed: %v", round, err)
		}

		var wg sync.WaitGroup
		var returnErr, writeOffErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, returnErr = e.tracker.CreateReturn(e.ctx, iss.ID, locMain, "")
		}()
		go func() {
			defer wg.Done()
			_, writeOffErr = e.writeOffs.WriteOffAsset(e.ctx, a.ID, "lost")
		}()
		wg.Wait()

		if writeOffErr != nil {
			t.Errorf("round %d: WriteOffAsset failed: %v", round, writeOffErr)
		}
		if returnErr != nil && core.KindOf(returnErr) != core.KindConflict {
			t.Errorf("round %d: CreateReturn should succeed or conflict, got %v", round, returnErr)
		}
		got, err := e.registry.Get(e.ctx, a.ID)
		if err != nil {
			t.Fatalf("round %d: Get failed: %v", round, err)
		}
		if got.Status != core.StatusWrittenOff {
			t.Errorf("round %d: Expected WRITTEN_OFF, got %s", round, got.Status)
		}
		if n := e.count(t, "SELECT COUNT(*) FROM issuances WHERE asset_id = $1 AND return_date IS NULL", a.ID); n != 0 {
			t.Errorf("round %d: Expected no active issuance, got %d", round, n)
		}
	}
}

// Bare registry transitions refuse an asset that is checked out through the
// tracker, leaving the issuance open for a proper return.
func TestAssetRegistry_StandaloneTransitionsRefuseTrackedAsset(t *testing.T) {
	e := setupTestDB(t)
	a := e.registerLaptop(t)

	iss, err := e.tracker.CreateIssuance(e.ctx, a.ID, "Alice", "")
	if err != nil {
		t.Fatalf("CreateIssuance failed: %v", err)
	}

	_, err = e.registry.ReturnToStock(e.ctx, a.ID, locMain)
	requireKind(t, err, core.ErrNotAvailable)
	if !strings.Contains(err.Error(), "Alice") {
		t.Errorf("Error should name the current holder, got %q", err)
	}
	_, err = e.registry.WriteOff(e.ctx, a.ID)
	requireKind(t, err, core.ErrNotAvailable)

	got, _ := e.registry.Get(e.ctx, a.ID)
	if got.Status != core.StatusIssued {
		t.Errorf("Expected ISSUED, got %s", got.Status)
	}
	if n := e.count(t, "SELECT COUNT(*) FROM issuances WHERE id = $1 AND return_date IS NULL", iss.ID); n != 1 {
		t.Errorf("Issuance should still be active, got %d", n)
	}

	if _, err := e.tracker.CreateReturn(e.ctx, iss.ID, locWorkshop, ""); err != nil {
		t.Fatalf("CreateReturn failed: %v", err)
	}
	if _, err := e.registry.WriteOff(e.ctx, a.ID); err != nil {
		t.Errorf("WriteOff after return failed: %v", err)
	}
}
