package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"workshop-reminders/internal/models"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func sampleReminder(id, plate, dueKey, dueDate string, status models.Status) models.Reminder {
	return models.Reminder{
		ID:        id,
		Plate:     plate,
		OwnerName: "Usman Ali",
		Phone:     "+92 300 0000001",
		DueKey:    dueKey,
		DueDate:   dueDate,
		Message:   "service due",
		Status:    status,
		CreatedAt: time.Now(),
	}
}

func TestVehicleRoundTrip(t *testing.T) {
	database := testDB(t)

	v := models.Vehicle{
		Plate:           "ael-123",
		OwnerName:       "Usman Ali",
		Phone:           "+92 300 0000001",
		Make:            "Toyota",
		Model:           "Corolla",
		Year:            "2020",
		Notes:           "regular customer",
		LastOdo:         intPtr(42000),
		LastServiceDate: strPtr("2025-07-18"),
	}
	if err := database.InsertVehicle(&v); err != nil {
		t.Fatalf("InsertVehicle: %v", err)
	}

	got, err := database.GetVehicle("AEL-123")
	if err != nil {
		t.Fatalf("GetVehicle: %v", err)
	}
	if got.Plate != "AEL-123" {
		t.Errorf("plate = %q, want normalized AEL-123", got.Plate)
	}
	if got.OwnerName != v.OwnerName || got.Phone != v.Phone || got.Make != v.Make ||
		got.Model != v.Model || got.Year != v.Year || got.Notes != v.Notes {
		t.Errorf("fields did not round-trip: %+v", got)
	}
	if got.LastOdo == nil || *got.LastOdo != 42000 {
		t.Errorf("last_odo = %v, want 42000", got.LastOdo)
	}
	if got.LastServiceDate == nil || *got.LastServiceDate != "2025-07-18" {
		t.Errorf("last_service_date = %v, want 2025-07-18", got.LastServiceDate)
	}
}

func TestVehicleOptionalFieldsAbsent(t *testing.T) {
	database := testDB(t)

	v := models.Vehicle{Plate: "NEW-1", OwnerName: "Ayesha Khan"}
	if err := database.InsertVehicle(&v); err != nil {
		t.Fatalf("InsertVehicle: %v", err)
	}

	got, err := database.GetVehicle("NEW-1")
	if err != nil {
		t.Fatalf("GetVehicle: %v", err)
	}
	if got.LastOdo != nil || got.LastServiceDate != nil {
		t.Errorf("optional fields should stay nil, got %+v", got)
	}
}

func TestUpdateVehicleService(t *testing.T) {
	database := testDB(t)

	v := models.Vehicle{Plate: "SVC-1", OwnerName: "Hassan Raza"}
	if err := database.InsertVehicle(&v); err != nil {
		t.Fatalf("InsertVehicle: %v", err)
	}

	if err := database.UpdateVehicleService("svc-1", 30000, "2025-08-01"); err != nil {
		t.Fatalf("UpdateVehicleService: %v", err)
	}

	got, _ := database.GetVehicle("SVC-1")
	if got.LastOdo == nil || *got.LastOdo != 30000 {
		t.Errorf("last_odo = %v, want 30000", got.LastOdo)
	}
	if got.LastServiceDate == nil || *got.LastServiceDate != "2025-08-01" {
		t.Errorf("last_service_date = %v, want 2025-08-01", got.LastServiceDate)
	}

	if err := database.UpdateVehicleService("NOPE-0", 1, "2025-08-01"); err == nil {
		t.Error("expected error for unknown plate")
	}
}

func TestRulesDefaultFallback(t *testing.T) {
	database := testDB(t)

	rules, err := database.LoadRules()
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules != models.DefaultRules() {
		t.Errorf("unconfigured rules = %+v, want defaults", rules)
	}
}

func TestRulesSaveAndReload(t *testing.T) {
	database := testDB(t)

	want := models.Rules{
		DistanceIntervalKm: 10000,
		TimeIntervalDays:   365,
		LeadDays:           14,
		Template:           "{plate} is due",
		DiscountText:       "free wash",
	}
	if err := database.SaveRules(want); err != nil {
		t.Fatalf("SaveRules: %v", err)
	}

	got, err := database.LoadRules()
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if got != want {
		t.Errorf("rules = %+v, want %+v", got, want)
	}

	// Saving again replaces the singleton row
	want.LeadDays = 30
	if err := database.SaveRules(want); err != nil {
		t.Fatalf("SaveRules update: %v", err)
	}
	got, _ = database.LoadRules()
	if got.LeadDays != 30 {
		t.Errorf("lead_days = %d, want 30", got.LeadDays)
	}
}

func TestReminderQueueOrderAndFilters(t *testing.T) {
	database := testDB(t)

	entries := []models.Reminder{
		sampleReminder("id-3", "CCC-3", "date:2025-03-01", "2025-03-01", models.StatusPending),
		sampleReminder("id-1", "AAA-1", "date:2025-01-01", "2025-01-01", models.StatusSent),
		sampleReminder("id-2", "BBB-2", "date:2025-02-01", "2025-02-01", models.StatusPending),
	}
	if _, err := database.InsertReminders(entries); err != nil {
		t.Fatalf("InsertReminders: %v", err)
	}

	all, err := database.ListReminders(models.ReminderQuery{})
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d entries, want 3", len(all))
	}
	for i, want := range []string{"id-1", "id-2", "id-3"} {
		if all[i].ID != want {
			t.Errorf("queue[%d].ID = %s, want %s (ascending due date)", i, all[i].ID, want)
		}
	}

	pending, err := database.ListReminders(models.ReminderQuery{Status: models.StatusPending})
	if err != nil {
		t.Fatalf("ListReminders(pending): %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending count = %d, want 2", len(pending))
	}

	found, err := database.ListReminders(models.ReminderQuery{Search: "bbb"})
	if err != nil {
		t.Fatalf("ListReminders(search): %v", err)
	}
	if len(found) != 1 || found[0].Plate != "BBB-2" {
		t.Errorf("search result = %+v, want BBB-2", found)
	}
}

func TestReminderUniqueDueEvent(t *testing.T) {
	database := testDB(t)

	first := []models.Reminder{sampleReminder("id-1", "AAA-1", "date:2025-01-08", "2025-01-08", models.StatusPending)}
	if _, err := database.InsertReminders(first); err != nil {
		t.Fatalf("InsertReminders: %v", err)
	}

	// Same (plate, due_key) is rejected by the storage constraint even if
	// a caller bypasses the engine's dedup index
	dup := []models.Reminder{sampleReminder("id-2", "AAA-1", "date:2025-01-08", "2025-01-08", models.StatusPending)}
	if _, err := database.InsertReminders(dup); err == nil {
		t.Error("expected unique constraint violation for duplicate due-event")
	}
}

func TestSetReminderStatus(t *testing.T) {
	database := testDB(t)

	entries := []models.Reminder{sampleReminder("id-1", "AAA-1", "date:2025-01-08", "2025-01-08", models.StatusPending)}
	if _, err := database.InsertReminders(entries); err != nil {
		t.Fatalf("InsertReminders: %v", err)
	}

	updated, err := database.SetReminderStatus("id-1", models.StatusSent)
	if err != nil {
		t.Fatalf("SetReminderStatus: %v", err)
	}
	if updated.Status != models.StatusSent {
		t.Errorf("status = %s, want sent", updated.Status)
	}

	// Idempotent re-send
	if _, err := database.SetReminderStatus("id-1", models.StatusSent); err != nil {
		t.Errorf("re-sending should be a no-op, got %v", err)
	}

	// Terminal state cannot move
	if _, err := database.SetReminderStatus("id-1", models.StatusDismissed); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("sent -> dismissed error = %v, want ErrInvalidTransition", err)
	}

	if _, err := database.SetReminderStatus("missing", models.StatusSent); err == nil {
		t.Error("expected error for unknown reminder id")
	}
}

func TestPurgeDismissed(t *testing.T) {
	database := testDB(t)

	entries := []models.Reminder{
		sampleReminder("id-1", "AAA-1", "date:2025-01-01", "2025-01-01", models.StatusPending),
		sampleReminder("id-2", "BBB-2", "date:2025-02-01", "2025-02-01", models.StatusSent),
		sampleReminder("id-3", "CCC-3", "date:2025-03-01", "2025-03-01", models.StatusDismissed),
		sampleReminder("id-4", "DDD-4", "date:2025-04-01", "2025-04-01", models.StatusDismissed),
	}
	if _, err := database.InsertReminders(entries); err != nil {
		t.Fatalf("InsertReminders: %v", err)
	}

	removed, err := database.PurgeDismissed()
	if err != nil {
		t.Fatalf("PurgeDismissed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	counts, err := database.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts["pending"] != 1 || counts["sent"] != 1 || counts["dismissed"] != 0 {
		t.Errorf("counts after purge = %v", counts)
	}
}
