package clinic

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/halaclinic/intake/internal/triage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "clinic.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRoster(t *testing.T, s *Store) {
	t.Helper()
	err := s.SeedDoctors([]Doctor{
		{Name: "Dr. Aisyah", Room: "1", OnDuty: true},
		{Name: "Dr. Tan", Room: "2", OnDuty: true},
		{Name: "Dr. Ravi", Room: "3", OnDuty: false},
	})
	if err != nil {
		t.Fatalf("SeedDoctors() error: %v", err)
	}
}

func TestRegisterAndLookup(t *testing.T) {
	s := newTestStore(t)

	id, err := s.RegisterPatient(Patient{
		Name: "Aminah binti Hassan", IC: "900101-01-1234",
		Phone: "012-3456789", DOB: "1990-01-01", Gender: "female",
	})
	if err != nil {
		t.Fatalf("RegisterPatient() error: %v", err)
	}
	if id == "" {
		t.Fatal("RegisterPatient() returned empty id")
	}

	p, err := s.LookupPatient("900101-01-1234", "", "")
	if err != nil {
		t.Fatalf("LookupPatient() error: %v", err)
	}
	if p == nil || p.ID != id {
		t.Fatalf("LookupPatient() = %+v, want id %s", p, id)
	}

	// Lookup is a pure read: calling it again yields the same record
	// and registers nothing.
	again, err := s.LookupPatient("900101-01-1234", "", "")
	if err != nil {
		t.Fatalf("second LookupPatient() error: %v", err)
	}
	if again.ID != p.ID {
		t.Errorf("second lookup id = %s, want %s", again.ID, p.ID)
	}
	if n, _ := s.CountPatients(); n != 1 {
		t.Errorf("patient count = %d, want 1", n)
	}

	// By name, case-insensitive.
	byName, err := s.LookupPatient("", "", "aminah binti hassan")
	if err != nil {
		t.Fatalf("LookupPatient(name) error: %v", err)
	}
	if byName == nil || byName.ID != id {
		t.Errorf("lookup by name = %+v", byName)
	}
}

func TestLookupNotFound(t *testing.T) {
	s := newTestStore(t)

	p, err := s.LookupPatient("999999-99-9999", "", "")
	if err != nil {
		t.Fatalf("LookupPatient() error: %v", err)
	}
	if p != nil {
		t.Errorf("LookupPatient() = %+v, want nil for unknown ic", p)
	}

	// No identifiers at all is a miss, not an error.
	p, err = s.LookupPatient("", "", "")
	if err != nil || p != nil {
		t.Errorf("empty lookup = %+v, %v", p, err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	s := newTestStore(t)

	base := Patient{
		Name: "Lim Wei Jian", IC: "850505-05-5555",
		Phone: "019-8765432", DOB: "1985-05-05", Gender: "male",
	}
	if _, err := s.RegisterPatient(base); err != nil {
		t.Fatalf("first RegisterPatient() error: %v", err)
	}

	_, err := s.RegisterPatient(base)
	if !errors.Is(err, ErrDuplicatePatient) {
		t.Errorf("duplicate register error = %v, want ErrDuplicatePatient", err)
	}
	if n, _ := s.CountPatients(); n != 1 {
		t.Errorf("patient count after duplicate = %d, want 1", n)
	}

	// Same passport is also a duplicate.
	pp := Patient{Name: "Somchai", Passport: "AA1234567", Phone: "011-1111111", DOB: "1991-02-03", Gender: "male"}
	if _, err := s.RegisterPatient(pp); err != nil {
		t.Fatalf("passport register error: %v", err)
	}
	if _, err := s.RegisterPatient(pp); !errors.Is(err, ErrDuplicatePatient) {
		t.Errorf("duplicate passport error = %v", err)
	}
}

var queueNumberRe = regexp.MustCompile(`^[ABCD]-\d{3}$`)

func TestAssignQueue(t *testing.T) {
	s := newTestStore(t)
	seedRoster(t, s)

	id, err := s.RegisterPatient(Patient{
		Name: "Aminah binti Hassan", IC: "900101-01-1234",
		Phone: "012-3456789", DOB: "1990-01-01", Gender: "female",
	})
	if err != nil {
		t.Fatal(err)
	}

	v, err := s.AssignQueue(id, triage.SeverityUrgent, "high fever")
	if err != nil {
		t.Fatalf("AssignQueue() error: %v", err)
	}
	if !queueNumberRe.MatchString(v.QueueNumber) {
		t.Errorf("queue number %q does not match lane format", v.QueueNumber)
	}
	if v.QueueNumber != "B-001" {
		t.Errorf("queue number = %q, want B-001", v.QueueNumber)
	}
	if v.DoctorName == "" || v.DoctorName == "Dr. Ravi" {
		t.Errorf("assigned doctor %q (off-duty doctors must be skipped)", v.DoctorName)
	}

	// Numbers are monotonic within a lane and independent across lanes.
	v2, err := s.AssignQueue(id, triage.SeverityUrgent, "")
	if err != nil {
		t.Fatal(err)
	}
	if v2.QueueNumber != "B-002" {
		t.Errorf("second urgent ticket = %q, want B-002", v2.QueueNumber)
	}
	v3, err := s.AssignQueue(id, triage.SeverityMild, "")
	if err != nil {
		t.Fatal(err)
	}
	if v3.QueueNumber != "D-001" {
		t.Errorf("first mild ticket = %q, want D-001", v3.QueueNumber)
	}

	// Round-trip for the ticket endpoint.
	got, err := s.GetVisit(v.ID)
	if err != nil {
		t.Fatalf("GetVisit() error: %v", err)
	}
	if got.QueueNumber != v.QueueNumber || got.Room == "" {
		t.Errorf("GetVisit() = %+v", got)
	}

	queue, err := s.TodayQueue()
	if err != nil {
		t.Fatalf("TodayQueue() error: %v", err)
	}
	if len(queue) != 3 {
		t.Errorf("TodayQueue() length = %d, want 3", len(queue))
	}
}

func TestAssignQueueNoDoctor(t *testing.T) {
	s := newTestStore(t)
	if err := s.SeedDoctors([]Doctor{{Name: "Dr. Off", Room: "1", OnDuty: false}}); err != nil {
		t.Fatal(err)
	}

	id, err := s.RegisterPatient(Patient{
		Name: "Lim Wei Jian", IC: "850505-05-5555",
		Phone: "019-8765432", DOB: "1985-05-05", Gender: "male",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.AssignQueue(id, triage.SeverityModerate, "")
	if !errors.Is(err, ErrNoDoctorAvailable) {
		t.Errorf("AssignQueue() error = %v, want ErrNoDoctorAvailable", err)
	}
}

func TestAssignQueueUnknownPatient(t *testing.T) {
	s := newTestStore(t)
	seedRoster(t, s)

	_, err := s.AssignQueue("no-such-id", triage.SeverityMild, "")
	if !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("AssignQueue() error = %v, want ErrPatientNotFound", err)
	}
}

func TestSummaryAndFeedback(t *testing.T) {
	s := newTestStore(t)

	id, err := s.RegisterPatient(Patient{
		Name: "Aminah binti Hassan", IC: "900101-01-1234",
		Phone: "012-3456789", DOB: "1990-01-01", Gender: "female",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RecordSummary(id, "mild", "routine checkup, advised rest"); err != nil {
		t.Errorf("RecordSummary() error: %v", err)
	}
	if err := s.RecordFeedback(id, "very quick, thank you"); err != nil {
		t.Errorf("RecordFeedback() error: %v", err)
	}

	if err := s.RecordSummary("ghost", "mild", "x"); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("RecordSummary(unknown) error = %v", err)
	}
	if err := s.RecordFeedback("ghost", "x"); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("RecordFeedback(unknown) error = %v", err)
	}
}

func TestGetVisitNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetVisit("no-such-visit"); !errors.Is(err, ErrVisitNotFound) {
		t.Errorf("GetVisit(unknown) error = %v, want ErrVisitNotFound", err)
	}
}

func TestSeedDoctorsIdempotent(t *testing.T) {
	s := newTestStore(t)
	seedRoster(t, s)
	// A second seed must not duplicate the roster.
	seedRoster(t, s)

	id, err := s.RegisterPatient(Patient{
		Name: "X", IC: "700707-07-7777", Phone: "0", DOB: "1970-07-07", Gender: "male",
	})
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.AssignQueue(id, triage.SeverityMild, "")
	if err != nil {
		t.Fatal(err)
	}
	if v.QueueNumber != "D-001" {
		t.Errorf("queue number = %q", v.QueueNumber)
	}
}
