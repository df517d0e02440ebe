// Package clinic provides the SQLite-backed patient, visit, and queue
// store behind the local intake capabilities.
package clinic

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/halaclinic/intake/internal/triage"
)

// dsnOptions enables WAL and a busy timeout so concurrent intake
// requests do not trip over each other.
const dsnOptions = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Sentinel errors callers branch on. Everything else is wrapped detail.
var (
	// ErrDuplicatePatient means the identifier is already registered.
	ErrDuplicatePatient = errors.New("patient already registered")

	// ErrNoDoctorAvailable means no doctor is on duty for assignment.
	ErrNoDoctorAvailable = errors.New("no doctor available")

	// ErrPatientNotFound means the referenced patient does not exist.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrVisitNotFound means the referenced visit does not exist.
	ErrVisitNotFound = errors.New("visit not found")
)

// Patient is one registered person.
type Patient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IC        string    `json:"ic,omitempty"`       // national identity card number
	Passport  string    `json:"passport,omitempty"` // for non-citizens
	Phone     string    `json:"phone"`
	DOB       string    `json:"dob"`
	Gender    string    `json:"gender"`
	CreatedAt time.Time `json:"created_at"`
}

// Doctor is one member of the duty roster.
type Doctor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Room   string `json:"room"`
	OnDuty bool   `json:"on_duty"`
}

// Visit is one queue assignment.
type Visit struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	Category    string    `json:"category"`
	Notes       string    `json:"notes,omitempty"`
	QueueNumber string    `json:"queue_number"`
	DoctorID    string    `json:"doctor_id"`
	DoctorName  string    `json:"doctor_name"`
	Room        string    `json:"room"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the SQLite-backed clinic database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the clinic database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open clinic database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate clinic database: %w", err)
	}

	return s, nil
}

// migrate creates the schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ic TEXT,
		passport TEXT,
		phone TEXT NOT NULL,
		dob TEXT NOT NULL,
		gender TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_patients_ic ON patients(ic) WHERE ic != '';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_patients_passport ON patients(passport) WHERE passport != '';

	CREATE TABLE IF NOT EXISTS doctors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		room TEXT NOT NULL,
		on_duty BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS visits (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		category TEXT NOT NULL,
		notes TEXT,
		queue_number TEXT NOT NULL,
		doctor_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (patient_id) REFERENCES patients(id),
		FOREIGN KEY (doctor_id) REFERENCES doctors(id)
	);
	CREATE INDEX IF NOT EXISTS idx_visits_created ON visits(created_at);
	CREATE INDEX IF NOT EXISTS idx_visits_patient ON visits(patient_id);

	CREATE TABLE IF NOT EXISTS summaries (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		category TEXT NOT NULL,
		notes TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (patient_id) REFERENCES patients(id)
	);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (patient_id) REFERENCES patients(id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterPatient inserts a new patient and returns the assigned ID.
// An identifier (IC or passport) that already exists is a duplicate,
// not an update.
func (s *Store) RegisterPatient(p Patient) (string, error) {
	if p.IC != "" {
		if existing, err := s.lookupByIdentifier(p.IC, ""); err != nil {
			return "", err
		} else if existing != nil {
			return "", ErrDuplicatePatient
		}
	}
	if p.Passport != "" {
		if existing, err := s.lookupByIdentifier("", p.Passport); err != nil {
			return "", err
		} else if existing != nil {
			return "", ErrDuplicatePatient
		}
	}

	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO patients (id, name, ic, passport, phone, dob, gender, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, p.Name, p.IC, p.Passport, p.Phone, p.DOB, p.Gender, time.Now())
	if err != nil {
		// The unique indexes are the last line of defense against a
		// concurrent registration racing the pre-check.
		if strings.Contains(err.Error(), "UNIQUE") {
			return "", ErrDuplicatePatient
		}
		return "", fmt.Errorf("insert patient: %w", err)
	}

	return id, nil
}

// LookupPatient finds a patient by IC, passport, or exact name, in that
// precedence order. A miss returns (nil, nil): not finding someone is a
// valid outcome, not an error.
func (s *Store) LookupPatient(ic, passport, name string) (*Patient, error) {
	if ic != "" || passport != "" {
		return s.lookupByIdentifier(ic, passport)
	}

	if name == "" {
		return nil, nil
	}

	row := s.db.QueryRow(`
		SELECT id, name, ic, passport, phone, dob, gender, created_at
		FROM patients WHERE name = ? COLLATE NOCASE
		ORDER BY created_at LIMIT 1
	`, name)
	return scanPatient(row)
}

// GetPatient fetches a patient by record ID.
func (s *Store) GetPatient(id string) (*Patient, error) {
	row := s.db.QueryRow(`
		SELECT id, name, ic, passport, phone, dob, gender, created_at
		FROM patients WHERE id = ?
	`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (s *Store) lookupByIdentifier(ic, passport string) (*Patient, error) {
	var row *sql.Row
	switch {
	case ic != "":
		row = s.db.QueryRow(`
			SELECT id, name, ic, passport, phone, dob, gender, created_at
			FROM patients WHERE ic = ?
		`, ic)
	case passport != "":
		row = s.db.QueryRow(`
			SELECT id, name, ic, passport, phone, dob, gender, created_at
			FROM patients WHERE passport = ?
		`, passport)
	default:
		return nil, nil
	}
	return scanPatient(row)
}

func scanPatient(row *sql.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.IC, &p.Passport, &p.Phone, &p.DOB, &p.Gender, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	return &p, nil
}

// SeedDoctors inserts the given roster if the doctors table is empty.
// Used at startup so a fresh database has someone to assign.
func (s *Store) SeedDoctors(roster []Doctor) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doctors`).Scan(&count); err != nil {
		return fmt.Errorf("count doctors: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, d := range roster {
		id := d.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := s.db.Exec(`
			INSERT INTO doctors (id, name, room, on_duty) VALUES (?, ?, ?, ?)
		`, id, d.Name, d.Room, d.OnDuty); err != nil {
			return fmt.Errorf("seed doctor %s: %w", d.Name, err)
		}
	}
	return nil
}

// AssignQueue creates a visit for the patient: the next ticket in the
// severity lane plus the least-loaded on-duty doctor. The whole
// assignment is one transaction so concurrent requests cannot mint the
// same ticket number.
func (s *Store) AssignQueue(patientID string, severity triage.Severity, notes string) (*Visit, error) {
	if _, err := s.GetPatient(patientID); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin assignment: %w", err)
	}
	defer tx.Rollback()

	dayStart := startOfDay(time.Now())

	// Next number in this severity lane for today.
	prefix := severity.QueuePrefix()
	var lane int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM visits
		WHERE created_at >= ? AND queue_number LIKE ?
	`, dayStart, prefix+"-%").Scan(&lane)
	if err != nil {
		return nil, fmt.Errorf("count lane: %w", err)
	}
	queueNumber := fmt.Sprintf("%s-%03d", prefix, lane+1)

	// Least-loaded on-duty doctor today.
	var doctor Doctor
	err = tx.QueryRow(`
		SELECT d.id, d.name, d.room FROM doctors d
		LEFT JOIN visits v ON v.doctor_id = d.id AND v.created_at >= ?
		WHERE d.on_duty
		GROUP BY d.id
		ORDER BY COUNT(v.id), d.name
		LIMIT 1
	`, dayStart).Scan(&doctor.ID, &doctor.Name, &doctor.Room)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDoctorAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("pick doctor: %w", err)
	}

	visit := &Visit{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		Category:    string(severity),
		Notes:       notes,
		QueueNumber: queueNumber,
		DoctorID:    doctor.ID,
		DoctorName:  doctor.Name,
		Room:        doctor.Room,
		CreatedAt:   time.Now(),
	}

	_, err = tx.Exec(`
		INSERT INTO visits (id, patient_id, category, notes, queue_number, doctor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, visit.ID, visit.PatientID, visit.Category, visit.Notes, visit.QueueNumber, visit.DoctorID, visit.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert visit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignment: %w", err)
	}

	return visit, nil
}

// GetVisit fetches one visit with its doctor joined in.
func (s *Store) GetVisit(id string) (*Visit, error) {
	row := s.db.QueryRow(`
		SELECT v.id, v.patient_id, v.category, COALESCE(v.notes, ''), v.queue_number,
		       v.doctor_id, d.name, d.room, v.created_at
		FROM visits v JOIN doctors d ON d.id = v.doctor_id
		WHERE v.id = ?
	`, id)

	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.Category, &v.Notes, &v.QueueNumber,
		&v.DoctorID, &v.DoctorName, &v.Room, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVisitNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan visit: %w", err)
	}
	return &v, nil
}

// TodayQueue lists today's visits in assignment order, for the board
// and the ops endpoint.
func (s *Store) TodayQueue() ([]Visit, error) {
	rows, err := s.db.Query(`
		SELECT v.id, v.patient_id, v.category, COALESCE(v.notes, ''), v.queue_number,
		       v.doctor_id, d.name, d.room, v.created_at
		FROM visits v JOIN doctors d ON d.id = v.doctor_id
		WHERE v.created_at >= ?
		ORDER BY v.created_at
	`, startOfDay(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.PatientID, &v.Category, &v.Notes, &v.QueueNumber,
			&v.DoctorID, &v.DoctorName, &v.Room, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RecordSummary stores the visit summary for a patient.
func (s *Store) RecordSummary(patientID, category, notes string) error {
	if _, err := s.GetPatient(patientID); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO summaries (id, patient_id, category, notes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), patientID, category, notes, time.Now())
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// RecordFeedback stores patient feedback text.
func (s *Store) RecordFeedback(patientID, text string) error {
	if _, err := s.GetPatient(patientID); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO feedback (id, patient_id, text, created_at)
		VALUES (?, ?, ?, ?)
	`, uuid.New().String(), patientID, text, time.Now())
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// CountPatients reports the number of registered patients, used by the
// stats endpoint and tests asserting no row was created.
func (s *Store) CountPatients() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM patients`).Scan(&n)
	return n, err
}

// startOfDay truncates t to local midnight; queue lanes reset daily.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
