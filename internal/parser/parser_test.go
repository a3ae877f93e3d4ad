package parser

import (
	"os"
	"path/filepath"
	"testing"

	"workshop-reminders/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCSV(t *testing.T) {
	csv := `plate,owner_name,phone,make,model,last_odo,last_service_date
ael-123,Usman Ali,+92 300 0000001,Toyota,Corolla,42000,2025-07-18
ABC-321,Hassan Raza,+92 300 0000002,Honda,Civic,27500,2025/07/25
LEA-909,Ayesha Khan,+92 300 0000003,Suzuki,Alto,,
`
	p := NewParser("csv")
	vehicles, err := p.ParseFile(writeFile(t, "vehicles.csv", csv))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(vehicles) != 3 {
		t.Fatalf("parsed %d vehicles, want 3", len(vehicles))
	}

	v := vehicles[0]
	if v.Plate != "AEL-123" {
		t.Errorf("plate = %q, want uppercased AEL-123", v.Plate)
	}
	if v.OwnerName != "Usman Ali" || v.Make != "Toyota" {
		t.Errorf("unexpected fields: %+v", v)
	}
	if v.LastOdo == nil || *v.LastOdo != 42000 {
		t.Errorf("last_odo = %v, want 42000", v.LastOdo)
	}
	if v.LastServiceDate == nil || *v.LastServiceDate != "2025-07-18" {
		t.Errorf("last_service_date = %v, want 2025-07-18", v.LastServiceDate)
	}

	// Slash date normalized to ISO
	if d := vehicles[1].LastServiceDate; d == nil || *d != "2025-07-25" {
		t.Errorf("slash date not normalized: %v", d)
	}

	// Empty snapshot stays absent
	if vehicles[2].LastOdo != nil || vehicles[2].LastServiceDate != nil {
		t.Errorf("empty snapshot fields should be nil: %+v", vehicles[2])
	}
}

func TestParseCSVSkipsBadLines(t *testing.T) {
	csv := `plate,owner_name
,Missing Plate
XYZ-111,Good Owner
`
	p := NewParser("csv")
	vehicles, err := p.ParseFile(writeFile(t, "vehicles.csv", csv))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].Plate != "XYZ-111" {
		t.Errorf("expected only the valid line, got %+v", vehicles)
	}
}

func TestParseJSON(t *testing.T) {
	data := `[{"plate":"abc-1","owner_name":"Usman Ali","last_odo":5000}]`
	p := NewParser("json")
	vehicles, err := p.ParseFile(writeFile(t, "vehicles.json", data))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(vehicles) != 1 {
		t.Fatalf("parsed %d vehicles, want 1", len(vehicles))
	}
	if vehicles[0].Plate != "ABC-1" {
		t.Errorf("plate = %q, want ABC-1", vehicles[0].Plate)
	}
	if vehicles[0].LastOdo == nil || *vehicles[0].LastOdo != 5000 {
		t.Errorf("last_odo = %v, want 5000", vehicles[0].LastOdo)
	}
}

func TestParseJSONLines(t *testing.T) {
	data := `{"plate":"ael-123","owner_name":"Usman Ali","last_odo":42000}
{"plate":"ABC-321","owner_name":"Hassan Raza"}
`
	p := NewParser("json")
	vehicles, err := p.ParseFile(writeFile(t, "vehicles.ndjson", data))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("parsed %d vehicles, want 2", len(vehicles))
	}
	if vehicles[0].Plate != "AEL-123" || vehicles[1].Plate != "ABC-321" {
		t.Errorf("unexpected plates: %+v", vehicles)
	}
	if vehicles[0].LastOdo == nil || *vehicles[0].LastOdo != 42000 {
		t.Errorf("last_odo = %v, want 42000", vehicles[0].LastOdo)
	}
}

func TestParseJSONLinesSkipsBadLines(t *testing.T) {
	data := `{"plate":"XYZ-111","owner_name":"Good Owner"}
not json at all
{"plate":"XYZ-222","owner_name":"Also Good"}
`
	p := NewParser("json")
	vehicles, err := p.ParseFile(writeFile(t, "vehicles.ndjson", data))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(vehicles) != 2 {
		t.Errorf("parsed %d vehicles, want 2 (bad line skipped)", len(vehicles))
	}
}

func TestParseUnsupportedFormat(t *testing.T) {
	p := NewParser("xml")
	if _, err := p.ParseFile(writeFile(t, "vehicles.xml", "<x/>")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestValidateVehicle(t *testing.T) {
	odo := 42000
	bad := -1

	tests := []struct {
		name    string
		vehicle models.Vehicle
		wantOK  bool
	}{
		{"valid", models.Vehicle{Plate: "AEL-123", OwnerName: "Usman Ali", LastOdo: &odo}, true},
		{"missing plate", models.Vehicle{OwnerName: "Usman Ali"}, false},
		{"plate too short", models.Vehicle{Plate: "AB", OwnerName: "Usman Ali"}, false},
		{"plate bad chars", models.Vehicle{Plate: "AB_123!", OwnerName: "Usman Ali"}, false},
		{"missing owner", models.Vehicle{Plate: "AEL-123"}, false},
		{"bad year", models.Vehicle{Plate: "AEL-123", OwnerName: "Usman Ali", Year: "1900"}, false},
		{"good year", models.Vehicle{Plate: "AEL-123", OwnerName: "Usman Ali", Year: "2020"}, true},
		{"negative odo", models.Vehicle{Plate: "AEL-123", OwnerName: "Usman Ali", LastOdo: &bad}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateVehicle(&tt.vehicle)
			if ok := len(errs) == 0; ok != tt.wantOK {
				t.Errorf("ValidateVehicle(%+v) errors = %v, want ok=%v", tt.vehicle, errs, tt.wantOK)
			}
		})
	}
}
