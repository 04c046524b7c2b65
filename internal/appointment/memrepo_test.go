package appointment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/clinic-appointment-lifecycle/internal/redis"
)

// memRepository is an in-memory Repository with the same version check and
// idempotency-key uniqueness as the Postgres one.
type memRepository struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	clinicians   map[uuid.UUID]Clinician
	appointments map[uuid.UUID]Appointment
	entries      []HistoryEntry
	events       []string
	seq          int64

	// readBarrier, when set, holds every GetAppointmentByID until the
	// barrier count is reached so callers observe the same version.
	readBarrier *sync.WaitGroup
	// beforeCommit runs inside Commit before the version check.
	beforeCommit func(m *memRepository, c Change)
	commitErr    error
}

func newMemRepository() *memRepository {
	return &memRepository{
		patients:     make(map[uuid.UUID]Patient),
		clinicians:   make(map[uuid.UUID]Clinician),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *memRepository) addPatient() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.patients[id] = Patient{ID: id, Name: "Test Patient"}
	return id
}

func (m *memRepository) addClinician() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.clinicians[id] = Clinician{ID: id, Name: "Dr. Test"}
	return id
}

func (m *memRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memRepository) GetClinicianByID(_ context.Context, id uuid.UUID) (*Clinician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clinicians[id]
	if !ok {
		return nil, ErrClinicianNotFound
	}
	return &c, nil
}

func (m *memRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	a, ok := m.appointments[id]
	barrier := m.readBarrier
	m.mu.Unlock()
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	c := a.clone()
	return &c, nil
}

func (m *memRepository) CreateAppointment(_ context.Context, in NewAppointment) (*Appointment, *HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	a := Appointment{
		ID:        uuid.New(),
		PatientID: in.PatientID,
		ServiceID: in.ServiceID,
		DoctorID:  copyUUID(in.DoctorID),
		Status:    StatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.appointments[a.ID] = a

	entry := m.appendLocked(HistoryEntry{
		ID:            uuid.New(),
		AppointmentID: a.ID,
		ChangeType:    ChangeStatus,
		ToStatus:      StatusPending.Ptr(),
		ActorID:       in.ActorID,
		NewDoctorID:   copyUUID(in.DoctorID),
		CreatedAt:     now,
	})
	m.events = append(m.events, EventAppointmentCreated)

	c := a.clone()
	return &c, &entry, nil
}

func (m *memRepository) Commit(_ context.Context, c Change) (*Appointment, *HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.beforeCommit != nil {
		m.beforeCommit(m, c)
	}
	if m.commitErr != nil {
		return nil, nil, m.commitErr
	}

	current, ok := m.appointments[c.Appointment.ID]
	if !ok || current.Version != c.ExpectedVersion {
		return nil, nil, newError(KindConcurrentModification,
			"appointment %s changed since version %d", c.Appointment.ID, c.ExpectedVersion)
	}
	if c.Entry.IdempotencyKey != "" {
		for _, e := range m.entries {
			if e.AppointmentID == c.Appointment.ID && e.IdempotencyKey == c.Entry.IdempotencyKey {
				return nil, nil, newError(KindConcurrentModification, "idempotency key %q already used", c.Entry.IdempotencyKey)
			}
		}
	}

	next := c.Appointment.clone()
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now().UTC()
	m.appointments[next.ID] = next

	entry := m.appendLocked(c.Entry)
	m.events = append(m.events, c.EventType)

	out := next.clone()
	return &out, &entry, nil
}

func (m *memRepository) appendLocked(e HistoryEntry) HistoryEntry {
	m.seq++
	e.Seq = m.seq
	m.entries = append(m.entries, e)
	return e
}

// bumpVersionLocked simulates another writer committing, e.g. the medical record
// workflow touching the appointment.
func (m *memRepository) bumpVersionLocked(id uuid.UUID) {
	a := m.appointments[id]
	a.Version++
	m.appointments[id] = a
}

func (m *memRepository) ListHistory(_ context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryEntry
	for _, e := range m.entries {
		if e.AppointmentID == appointmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepository) GetHistoryEntry(_ context.Context, id uuid.UUID) (*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			out := e
			return &out, nil
		}
	}
	return nil, ErrHistoryEntryNotFound
}

func (m *memRepository) LastStatusChange(_ context.Context, appointmentID uuid.UUID) (*HistoryEntry, error) {
	return m.findLast(appointmentID, func(e HistoryEntry) bool {
		return e.ChangeType == ChangeStatus && e.FromStatus != nil
	})
}

func (m *memRepository) LatestStatusEntry(_ context.Context, appointmentID uuid.UUID) (*HistoryEntry, error) {
	return m.findLast(appointmentID, func(e HistoryEntry) bool {
		return e.ChangeType == ChangeStatus || e.ChangeType == ChangeStatusReversion
	})
}

func (m *memRepository) FindByIdempotencyKey(_ context.Context, appointmentID uuid.UUID, key string) (*HistoryEntry, error) {
	return m.findLast(appointmentID, func(e HistoryEntry) bool {
		return e.IdempotencyKey == key
	})
}

func (m *memRepository) findLast(appointmentID uuid.UUID, match func(HistoryEntry) bool) (*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.AppointmentID == appointmentID && match(e) {
			return &e, nil
		}
	}
	return nil, ErrHistoryEntryNotFound
}

func (m *memRepository) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

type fakeRecords struct {
	mu    sync.Mutex
	has   map[uuid.UUID]bool
	err   error
	calls int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{has: make(map[uuid.UUID]bool)}
}

func (f *fakeRecords) HasRecord(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.has[id], nil
}

func (f *fakeRecords) add(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.has[id] = true
}

type busyLocker struct{}

func (busyLocker) WithAppointmentLock(context.Context, uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type recordingRecorder struct {
	mu         sync.Mutex
	changes    []string
	rejections []Kind
}

func (r *recordingRecorder) ObserveChange(ct ChangeType, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, string(ct)+":"+from+"->"+to)
}

func (r *recordingRecorder) ObserveRejection(_ string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, kind)
}

var errStoreDown = errors.New("store down")
