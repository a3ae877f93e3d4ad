package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"workshop-reminders/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite connection
type Database struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	// Enable WAL mode and other optimizations via connection string
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings for better performance
	conn.SetMaxOpenConns(1) // SQLite works best with single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}

	if err := db.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates tables and indexes
func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicles (
		plate TEXT PRIMARY KEY,
		owner_name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		make TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		year TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		last_odo INTEGER,
		last_service_date TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		distance_interval_km INTEGER NOT NULL,
		time_interval_days INTEGER NOT NULL,
		lead_days INTEGER NOT NULL,
		template TEXT NOT NULL,
		discount_text TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		plate TEXT NOT NULL,
		owner_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		due_key TEXT NOT NULL,
		due_date TEXT NOT NULL,
		due_km INTEGER,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		UNIQUE (plate, due_key)
	);

	-- Indexes for queue listing and purge
	CREATE INDEX IF NOT EXISTS idx_reminders_due_date ON reminders(due_date);
	CREATE INDEX IF NOT EXISTS idx_reminders_status ON reminders(status);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// InsertVehicle registers a new vehicle
func (db *Database) InsertVehicle(v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (plate, owner_name, phone, make, model, year, notes, last_odo, last_service_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.Exec(query,
		models.NormalizePlate(v.Plate), v.OwnerName, v.Phone, v.Make, v.Model, v.Year, v.Notes,
		nullInt(v.LastOdo), nullString(v.LastServiceDate),
	)
	return err
}

// GetVehicle retrieves a vehicle by plate
func (db *Database) GetVehicle(plate string) (*models.Vehicle, error) {
	query := `
		SELECT plate, owner_name, phone, make, model, year, notes, last_odo, last_service_date, created_at
		FROM vehicles WHERE plate = ?
	`

	var v models.Vehicle
	var odo sql.NullInt64
	var date sql.NullString
	err := db.conn.QueryRow(query, models.NormalizePlate(plate)).Scan(
		&v.Plate, &v.OwnerName, &v.Phone, &v.Make, &v.Model, &v.Year, &v.Notes,
		&odo, &date, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	setOptional(&v, odo, date)
	return &v, nil
}

// ListVehicles returns all vehicles
func (db *Database) ListVehicles() ([]models.Vehicle, error) {
	query := `
		SELECT plate, owner_name, phone, make, model, year, notes, last_odo, last_service_date, created_at
		FROM vehicles ORDER BY plate
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		var odo sql.NullInt64
		var date sql.NullString
		if err := rows.Scan(
			&v.Plate, &v.OwnerName, &v.Phone, &v.Make, &v.Model, &v.Year, &v.Notes,
			&odo, &date, &v.CreatedAt,
		); err != nil {
			return nil, err
		}
		setOptional(&v, odo, date)
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// UpdateVehicleService records a completed service on a vehicle
func (db *Database) UpdateVehicleService(plate string, odo int, serviceDate string) error {
	query := `UPDATE vehicles SET last_odo = ?, last_service_date = ? WHERE plate = ?`
	result, err := db.conn.Exec(query, odo, serviceDate, models.NormalizePlate(plate))
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LoadRules returns the configured rules, falling back to defaults when
// nothing has been saved yet
func (db *Database) LoadRules() (models.Rules, error) {
	query := `
		SELECT distance_interval_km, time_interval_days, lead_days, template, discount_text
		FROM rules WHERE id = 1
	`

	var r models.Rules
	err := db.conn.QueryRow(query).Scan(
		&r.DistanceIntervalKm, &r.TimeIntervalDays, &r.LeadDays, &r.Template, &r.DiscountText,
	)
	if err == sql.ErrNoRows {
		return models.DefaultRules(), nil
	}
	if err != nil {
		return models.Rules{}, err
	}
	return r.Normalize(), nil
}

// SaveRules replaces the active rules
func (db *Database) SaveRules(r models.Rules) error {
	r = r.Normalize()
	query := `
		INSERT INTO rules (id, distance_interval_km, time_interval_days, lead_days, template, discount_text)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			distance_interval_km = excluded.distance_interval_km,
			time_interval_days = excluded.time_interval_days,
			lead_days = excluded.lead_days,
			template = excluded.template,
			discount_text = excluded.discount_text
	`
	_, err := db.conn.Exec(query,
		r.DistanceIntervalKm, r.TimeIntervalDays, r.LeadDays, r.Template, r.DiscountText,
	)
	return err
}

// InsertReminders appends generated entries to the queue in one transaction
func (db *Database) InsertReminders(entries []models.Reminder) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO reminders
		(id, plate, owner_name, phone, due_key, due_date, due_km, message, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var count int64
	for _, r := range entries {
		_, err := stmt.Exec(
			r.ID, r.Plate, r.OwnerName, r.Phone, r.DueKey, r.DueDate,
			nullInt(r.DueKm), r.Message, string(r.Status), r.CreatedAt,
		)
		if err != nil {
			return count, err
		}
		count++
	}

	return count, tx.Commit()
}

// ListReminders retrieves queue entries, due-soonest first
func (db *Database) ListReminders(q models.ReminderQuery) ([]models.Reminder, error) {
	var conditions []string
	var args []interface{}

	baseQuery := `
		SELECT id, plate, owner_name, phone, due_key, due_date, due_km, message, status, created_at
		FROM reminders
	`

	if q.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		conditions = append(conditions, "(plate LIKE ? OR owner_name LIKE ? OR message LIKE ? OR status LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern)
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	// Queue order: ascending due date, ties stay in insertion order
	baseQuery += " ORDER BY due_date, created_at, rowid"

	if q.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			baseQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := db.conn.Query(baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.Reminder
	for rows.Next() {
		var r models.Reminder
		var km sql.NullInt64
		var status string

		err := rows.Scan(
			&r.ID, &r.Plate, &r.OwnerName, &r.Phone, &r.DueKey, &r.DueDate,
			&km, &r.Message, &status, &r.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if km.Valid {
			v := int(km.Int64)
			r.DueKm = &v
		}
		r.Status = models.Status(status)
		results = append(results, r)
	}

	return results, rows.Err()
}

// GetReminder retrieves a single queue entry
func (db *Database) GetReminder(id string) (*models.Reminder, error) {
	query := `
		SELECT id, plate, owner_name, phone, due_key, due_date, due_km, message, status, created_at
		FROM reminders WHERE id = ?
	`

	var r models.Reminder
	var km sql.NullInt64
	var status string
	err := db.conn.QueryRow(query, id).Scan(
		&r.ID, &r.Plate, &r.OwnerName, &r.Phone, &r.DueKey, &r.DueDate,
		&km, &r.Message, &status, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if km.Valid {
		v := int(km.Int64)
		r.DueKm = &v
	}
	r.Status = models.Status(status)
	return &r, nil
}

// SetReminderStatus applies a lifecycle transition to one entry.
// Re-applying the current status is a no-op; leaving a terminal status
// returns models.ErrInvalidTransition.
func (db *Database) SetReminderStatus(id string, next models.Status) (*models.Reminder, error) {
	current, err := db.GetReminder(id)
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, next)
	}
	if current.Status == next {
		return current, nil
	}

	_, err = db.conn.Exec(`UPDATE reminders SET status = ? WHERE id = ?`, string(next), id)
	if err != nil {
		return nil, err
	}
	current.Status = next
	return current, nil
}

// PurgeDismissed removes all dismissed entries and returns how many
func (db *Database) PurgeDismissed() (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM reminders WHERE status = ?`, string(models.StatusDismissed))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountByStatus returns queue sizes per lifecycle state
func (db *Database) CountByStatus() (map[string]int64, error) {
	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM reminders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int64{
		string(models.StatusPending):   0,
		string(models.StatusSent):      0,
		string(models.StatusDismissed): 0,
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// GetStats returns database statistics
func (db *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalVehicles int64
	db.conn.QueryRow("SELECT COUNT(*) FROM vehicles").Scan(&totalVehicles)
	stats["total_vehicles"] = totalVehicles

	var totalReminders int64
	db.conn.QueryRow("SELECT COUNT(*) FROM reminders").Scan(&totalReminders)
	stats["total_reminders"] = totalReminders

	counts, err := db.CountByStatus()
	if err != nil {
		return nil, err
	}
	for status, n := range counts {
		stats["reminders_"+status] = n
	}

	return stats, nil
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func setOptional(v *models.Vehicle, odo sql.NullInt64, date sql.NullString) {
	if odo.Valid {
		n := int(odo.Int64)
		v.LastOdo = &n
	}
	if date.Valid {
		v.LastServiceDate = &date.String
	}
}
