package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"workshop-reminders/internal/models"
)

// Parser handles parsing of vehicle registry files
type Parser struct {
	format string
}

// NewParser creates a new parser with the specified format
func NewParser(format string) *Parser {
	return &Parser{format: format}
}

// ParseFile parses a vehicle registry file
func (p *Parser) ParseFile(filename string) ([]models.Vehicle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(p.format) {
	case "csv":
		return p.parseCSV(file)
	case "json":
		return p.parseJSON(file)
	default:
		return nil, fmt.Errorf("unsupported format: %s", p.format)
	}
}

// parseCSV parses CSV formatted vehicle records
func (p *Parser) parseCSV(r io.Reader) ([]models.Vehicle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable fields

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map header indices
	indices := make(map[string]int)
	for i, h := range header {
		indices[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var results []models.Vehicle
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return results, fmt.Errorf("error at line %d: %w", lineNum, err)
		}
		lineNum++

		v, err := p.recordToVehicle(record, indices)
		if err != nil {
			// Log error but continue parsing
			fmt.Printf("Warning: line %d: %v\n", lineNum, err)
			continue
		}
		results = append(results, v)
	}

	return results, nil
}

// recordToVehicle converts a CSV record to a Vehicle
func (p *Parser) recordToVehicle(record []string, indices map[string]int) (models.Vehicle, error) {
	var v models.Vehicle

	getValue := func(key string) string {
		if idx, ok := indices[key]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	v.Plate = models.NormalizePlate(getValue("plate"))
	if v.Plate == "" {
		return v, fmt.Errorf("missing plate")
	}

	v.OwnerName = getValue("owner_name")
	v.Phone = getValue("phone")
	v.Make = getValue("make")
	v.Model = getValue("model")
	v.Year = getValue("year")
	v.Notes = getValue("notes")

	// Optional last-service snapshot; absent and malformed values stay nil
	if s := getValue("last_odo"); s != "" {
		if odo, err := strconv.Atoi(s); err == nil {
			v.LastOdo = &odo
		}
	}
	if s := getValue("last_service_date"); s != "" {
		if d, err := parseDate(s); err == nil {
			v.LastServiceDate = &d
		}
	}

	return v, nil
}

// parseJSON parses JSON formatted vehicle records, either a single array
// or newline-delimited objects
func (p *Parser) parseJSON(r io.Reader) ([]models.Vehicle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	// Dispatch on the first non-space byte: an array decodes in one shot,
	// anything else is treated as line-by-line JSON
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		var results []models.Vehicle
		if err := json.Unmarshal(data, &results); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		for i := range results {
			results[i].Plate = models.NormalizePlate(results[i].Plate)
		}
		return results, nil
	}

	return p.parseJSONLines(bytes.NewReader(data))
}

// parseJSONLines parses newline-delimited JSON
func (p *Parser) parseJSONLines(r io.Reader) ([]models.Vehicle, error) {
	var results []models.Vehicle
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "[" || line == "]" {
			continue
		}

		// Remove trailing comma if present
		line = strings.TrimSuffix(line, ",")

		var v models.Vehicle
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			fmt.Printf("Warning: line %d: %v\n", lineNum, err)
			continue
		}
		v.Plate = models.NormalizePlate(v.Plate)
		results = append(results, v)
	}

	return results, scanner.Err()
}

// parseDate tries multiple date formats, normalizing to ISO
func parseDate(s string) (string, error) {
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}

	return "", fmt.Errorf("unable to parse date: %s", s)
}

var plateRe = regexp.MustCompile(`^[A-Z0-9\- ]{3,12}$`)

// ValidateVehicle validates a vehicle record before registration
func ValidateVehicle(v *models.Vehicle) []string {
	var errors []string

	if v.Plate == "" {
		errors = append(errors, "plate is required")
	} else if !plateRe.MatchString(v.Plate) {
		errors = append(errors, "plate must be letters, numbers, dash (3-12 chars)")
	}
	if v.OwnerName == "" {
		errors = append(errors, "owner_name is required")
	}
	if v.Year != "" {
		year, err := strconv.Atoi(v.Year)
		if err != nil || year < 1980 || year > time.Now().Year()+1 {
			errors = append(errors, "year looks invalid")
		}
	}
	if v.LastOdo != nil && *v.LastOdo < 0 {
		errors = append(errors, "last_odo cannot be negative")
	}

	return errors
}
