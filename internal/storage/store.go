package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"lprd/internal/pipeline"
)

// Store handles SQLite persistence for plate detections, the vehicle
// registry and the access log.
type Store struct {
	db *sql.DB
}

// DetectionRecord is a persisted plate detection.
type DetectionRecord struct {
	ID                  string
	Plate               string
	RawText             string
	Format              string
	BoxX, BoxY          int
	BoxWidth, BoxHeight int
	DetectionConfidence float64
	OCRConfidence       float64
	FrameSeq            uint64
	Location            string
	Authorized          bool
	Timestamp           time.Time
}

// VehicleRecord is an entry in the registered-vehicle registry.
type VehicleRecord struct {
	Plate        string
	OwnerName    string
	Description  string
	Authorized   bool
	RegisteredAt time.Time
}

// AccessRecord is one entry in the access log.
type AccessRecord struct {
	ID        int64
	Plate     string
	Location  string
	Granted   bool
	Reason    string
	Timestamp time.Time
}

// New opens the database at the given path with WAL mode enabled.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS lpr_detections (
			id TEXT PRIMARY KEY,
			plate TEXT NOT NULL,
			raw_text TEXT,
			format TEXT,
			box_x INTEGER,
			box_y INTEGER,
			box_width INTEGER,
			box_height INTEGER,
			detection_confidence REAL,
			ocr_confidence REAL,
			frame_seq INTEGER,
			location TEXT,
			authorized INTEGER DEFAULT 0,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS registered_vehicles (
			plate TEXT PRIMARY KEY,
			owner_name TEXT,
			description TEXT,
			authorized INTEGER DEFAULT 1,
			registered_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS access_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plate TEXT NOT NULL,
			location TEXT,
			granted INTEGER NOT NULL,
			reason TEXT,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_plate_time ON lpr_detections(plate, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_time ON lpr_detections(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_access_plate_time ON access_log(plate, timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveDetection persists a detection and its access-log entry in one
// transaction.
func (s *Store) SaveDetection(ev *pipeline.DetectionEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	authorized := 0
	if ev.Authorized {
		authorized = 1
	}

	_, err = tx.Exec(`INSERT INTO lpr_detections
		(id, plate, raw_text, format, box_x, box_y, box_width, box_height,
		 detection_confidence, ocr_confidence, frame_seq, location, authorized, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Plate, ev.RawText, string(ev.Format), ev.BoxX, ev.BoxY,
		ev.BoxWidth, ev.BoxHeight, ev.DetectionConfidence, ev.OCRConfidence,
		ev.FrameSeq, ev.Location, authorized, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save detection: %w", err)
	}

	reason := "vehicle not authorized"
	if ev.Authorized {
		reason = "registered vehicle"
	}
	_, err = tx.Exec(`INSERT INTO access_log (plate, location, granted, reason, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		ev.Plate, ev.Location, authorized, reason, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save access entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit detection: %w", err)
	}
	return nil
}

// IsAuthorized reports whether a plate belongs to an authorized registered
// vehicle. Unknown plates are not authorized.
func (s *Store) IsAuthorized(plate string) (bool, error) {
	var authorized int
	err := s.db.QueryRow(
		"SELECT authorized FROM registered_vehicles WHERE plate = ?", plate,
	).Scan(&authorized)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up vehicle: %w", err)
	}
	return authorized == 1, nil
}

// RegisterVehicle adds or updates a registry entry.
func (s *Store) RegisterVehicle(v *VehicleRecord) error {
	authorized := 0
	if v.Authorized {
		authorized = 1
	}
	registeredAt := v.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now()
	}

	query := `INSERT INTO registered_vehicles (plate, owner_name, description, authorized, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plate) DO UPDATE SET
			owner_name = excluded.owner_name,
			description = excluded.description,
			authorized = excluded.authorized`

	_, err := s.db.Exec(query, v.Plate, v.OwnerName, v.Description, authorized, registeredAt)
	if err != nil {
		return fmt.Errorf("failed to register vehicle: %w", err)
	}
	return nil
}

// GetVehicle retrieves a registry entry by plate, or nil when absent.
func (s *Store) GetVehicle(plate string) (*VehicleRecord, error) {
	query := `SELECT plate, owner_name, description, authorized, registered_at
		FROM registered_vehicles WHERE plate = ?`

	var v VehicleRecord
	var authorized int
	err := s.db.QueryRow(query, plate).Scan(&v.Plate, &v.OwnerName, &v.Description, &authorized, &v.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	v.Authorized = authorized == 1
	return &v, nil
}

// UnregisterVehicle removes a registry entry.
func (s *Store) UnregisterVehicle(plate string) error {
	_, err := s.db.Exec("DELETE FROM registered_vehicles WHERE plate = ?", plate)
	if err != nil {
		return fmt.Errorf("failed to unregister vehicle: %w", err)
	}
	return nil
}

// RecentDetections returns detections newest first, optionally filtered by
// plate.
func (s *Store) RecentDetections(plate string, limit int) ([]*DetectionRecord, error) {
	query := `SELECT id, plate, raw_text, format, box_x, box_y, box_width, box_height,
		detection_confidence, ocr_confidence, frame_seq, location, authorized, timestamp
		FROM lpr_detections WHERE 1=1`
	args := []interface{}{}

	if plate != "" {
		query += " AND plate = ?"
		args = append(args, plate)
	}

	query += " ORDER BY timestamp DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer rows.Close()

	var records []*DetectionRecord
	for rows.Next() {
		var r DetectionRecord
		var authorized int
		if err := rows.Scan(&r.ID, &r.Plate, &r.RawText, &r.Format, &r.BoxX, &r.BoxY,
			&r.BoxWidth, &r.BoxHeight, &r.DetectionConfidence, &r.OCRConfidence,
			&r.FrameSeq, &r.Location, &authorized, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		r.Authorized = authorized == 1
		records = append(records, &r)
	}
	return records, nil
}

// AccessLog returns access entries newest first, optionally filtered by
// plate.
func (s *Store) AccessLog(plate string, limit int) ([]*AccessRecord, error) {
	query := `SELECT id, plate, location, granted, reason, timestamp FROM access_log WHERE 1=1`
	args := []interface{}{}

	if plate != "" {
		query += " AND plate = ?"
		args = append(args, plate)
	}

	query += " ORDER BY timestamp DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list access log: %w", err)
	}
	defer rows.Close()

	var records []*AccessRecord
	for rows.Next() {
		var r AccessRecord
		var granted int
		if err := rows.Scan(&r.ID, &r.Plate, &r.Location, &granted, &r.Reason, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan access entry: %w", err)
		}
		r.Granted = granted == 1
		records = append(records, &r)
	}
	return records, nil
}

// DeleteOldDetections removes detections older than the given time.
func (s *Store) DeleteOldDetections(before time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM lpr_detections WHERE timestamp < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old detections: %w", err)
	}
	return result.RowsAffected()
}

// Ensure Store satisfies the pipeline's persistence contract.
var _ pipeline.EventSink = (*Store)(nil)
