package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinware/clinic-backoffice/internal/actor"
	"github.com/clinware/clinic-backoffice/internal/audit"
	"github.com/clinware/clinic-backoffice/internal/redisclient"
)

func actorCtx() context.Context {
	return actor.WithActor(context.Background(), actor.Actor{
		UserID: uuid.New(),
		Name:   "Front Desk",
		Role:   "staff",
	})
}

func newTestService(repo Repository) *Service {
	return NewService(repo, passLocker{}, audit.NopSink{}, zerolog.Nop())
}

// passLocker runs the critical section without touching redis.
type passLocker struct{}

func (passLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

// busyLocker simulates a lock already held elsewhere.
type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// stubRepo is an in-memory Repository backed by a slice.
type stubRepo struct {
	appointments []*Appointment
	patients     map[uuid.UUID]bool
	doctors      map[uuid.UUID]bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		patients: map[uuid.UUID]bool{},
		doctors:  map[uuid.UUID]bool{},
	}
}

func (r *stubRepo) addAppointment(patientID, doctorID uuid.UUID, at time.Time, status Status) *Appointment {
	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		StartsAt:  at.UTC().Truncate(time.Minute),
		Status:    status,
	}
	r.appointments = append(r.appointments, appt)
	return appt
}

func (r *stubRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	for _, a := range r.appointments {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *stubRepo) CountScheduledAt(_ context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID) (int, error) {
	n := 0
	for _, a := range r.appointments {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.DoctorID == doctorID && a.StartsAt.Equal(at) && a.Status == StatusScheduled {
			n++
		}
	}
	return n, nil
}

func (r *stubRepo) Insert(_ context.Context, appt *Appointment) (*Appointment, error) {
	appt.ID = uuid.New()
	appt.CreatedAt = time.Now().UTC()
	appt.UpdatedAt = appt.CreatedAt
	r.appointments = append(r.appointments, appt)
	cp := *appt
	return &cp, nil
}

func (r *stubRepo) Update(_ context.Context, appt *Appointment) (*Appointment, error) {
	for i, a := range r.appointments {
		if a.ID == appt.ID {
			cp := *appt
			cp.UpdatedAt = time.Now().UTC()
			r.appointments[i] = &cp
			out := cp
			return &out, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *stubRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	for _, a := range r.appointments {
		if a.ID == id && a.Status == from {
			a.Status = to
			a.UpdatedAt = time.Now().UTC()
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *stubRepo) ListScheduledForDay(_ context.Context, patientID, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.appointments {
		if a.PatientID != patientID || a.DoctorID != doctorID || a.Status != StatusScheduled {
			continue
		}
		if a.StartsAt.Before(dayStart) || !a.StartsAt.Before(dayEnd) {
			continue
		}
		out = append(out, *a)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartsAt.Before(out[j-1].StartsAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *stubRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *stubRepo) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.patients[id], nil
}

func (r *stubRepo) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	return r.doctors[id], nil
}

func (r *stubRepo) knownPatient() uuid.UUID {
	id := uuid.New()
	r.patients[id] = true
	return id
}

func (r *stubRepo) knownDoctor() uuid.UUID {
	id := uuid.New()
	r.doctors[id] = true
	return id
}

var slot = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func TestBookRejectsOccupiedSlot(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	patientA := repo.knownPatient()
	patientB := repo.knownPatient()
	doctor := repo.knownDoctor()

	first, err := svc.Book(actorCtx(), BookInput{PatientID: patientA, DoctorID: doctor, StartsAt: slot})
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if first.Status != StatusScheduled {
		t.Fatalf("first booking status = %s, want scheduled", first.Status)
	}

	_, err = svc.Book(actorCtx(), BookInput{PatientID: patientB, DoctorID: doctor, StartsAt: slot})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("second booking error = %v, want ErrSlotTaken", err)
	}
}

func TestBookAllowsDifferentDoctorSameInstant(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	patient := repo.knownPatient()
	doctorA := repo.knownDoctor()
	doctorB := repo.knownDoctor()

	if _, err := svc.Book(actorCtx(), BookInput{PatientID: patient, DoctorID: doctorA, StartsAt: slot}); err != nil {
		t.Fatalf("booking doctor A: %v", err)
	}
	if _, err := svc.Book(actorCtx(), BookInput{PatientID: patient, DoctorID: doctorB, StartsAt: slot}); err != nil {
		t.Fatalf("booking doctor B at same instant: %v", err)
	}
}

func TestBookAfterCancelReusesSlot(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	patient := repo.knownPatient()
	doctor := repo.knownDoctor()

	appt, err := svc.Book(actorCtx(), BookInput{PatientID: patient, DoctorID: doctor, StartsAt: slot})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	cancelled, err := svc.Cancel(actorCtx(), appt.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status after cancel = %s, want cancelled", cancelled.Status)
	}

	rebooked, err := svc.Book(actorCtx(), BookInput{PatientID: patient, DoctorID: doctor, StartsAt: slot})
	if err != nil {
		t.Fatalf("rebooking freed slot: %v", err)
	}
	if rebooked.ID == appt.ID {
		t.Fatal("rebooking must create a new appointment")
	}
}

func TestBookTruncatesToMinute(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	patient := repo.knownPatient()
	doctor := repo.knownDoctor()

	appt, err := svc.Book(actorCtx(), BookInput{
		PatientID: patient,
		DoctorID:  doctor,
		StartsAt:  slot.Add(42 * time.Second),
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !appt.StartsAt.Equal(slot) {
		t.Fatalf("starts_at = %s, want %s", appt.StartsAt, slot)
	}

	// The sub-minute variant lands on the same slot.
	_, err = svc.Book(actorCtx(), BookInput{PatientID: patient, DoctorID: doctor, StartsAt: slot.Add(5 * time.Second)})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("error = %v, want ErrSlotTaken", err)
	}
}

func TestBookValidation(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	doctor := repo.knownDoctor()
	patient := repo.knownPatient()

	cases := []struct {
		name string
		in   BookInput
		want error
	}{
		{"missing patient", BookInput{DoctorID: doctor, StartsAt: slot}, ErrPatientNotFound},
		{"missing doctor", BookInput{PatientID: patient, StartsAt: slot}, ErrDoctorNotFound},
		{"missing instant", BookInput{PatientID: patient, DoctorID: doctor}, ErrMissingInstant},
		{"unknown patient", BookInput{PatientID: uuid.New(), DoctorID: doctor, StartsAt: slot}, ErrPatientNotFound},
		{"unknown doctor", BookInput{PatientID: patient, DoctorID: uuid.New(), StartsAt: slot}, ErrDoctorNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(actorCtx(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBookRequiresActor(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	_, err := svc.Book(context.Background(), BookInput{
		PatientID: repo.knownPatient(),
		DoctorID:  repo.knownDoctor(),
		StartsAt:  slot,
	})
	if !errors.Is(err, actor.ErrNoActor) {
		t.Fatalf("error = %v, want ErrNoActor", err)
	}
}

func TestBookLockContention(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, busyLocker{}, audit.NopSink{}, zerolog.Nop())

	_, err := svc.Book(actorCtx(), BookInput{
		PatientID: repo.knownPatient(),
		DoctorID:  repo.knownDoctor(),
		StartsAt:  slot,
	})
	if !errors.Is(err, ErrSlotBeingBooked) {
		t.Fatalf("error = %v, want ErrSlotBeingBooked", err)
	}
}

func TestCancelIsIdempotentlyRejected(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	appt := repo.addAppointment(uuid.New(), uuid.New(), slot, StatusCancelled)

	_, err := svc.Cancel(actorCtx(), appt.ID)
	if !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("error = %v, want ErrAlreadyCancelled", err)
	}
}

func TestCancelCompletedFails(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	appt := repo.addAppointment(uuid.New(), uuid.New(), slot, StatusCompleted)

	_, err := svc.Cancel(actorCtx(), appt.ID)
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("error = %v, want ErrTerminalState", err)
	}
}

func TestCancelUnknownAppointment(t *testing.T) {
	svc := newTestService(newStubRepo())

	_, err := svc.Cancel(actorCtx(), uuid.New())
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("error = %v, want ErrAppointmentNotFound", err)
	}
}

func TestEditGuardsNewSlot(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	doctor := repo.knownDoctor()
	blockerSlot := slot.Add(time.Hour)
	repo.addAppointment(uuid.New(), doctor, blockerSlot, StatusScheduled)
	appt := repo.addAppointment(uuid.New(), doctor, slot, StatusScheduled)

	_, err := svc.Edit(actorCtx(), EditInput{
		ID:       appt.ID,
		DoctorID: doctor,
		StartsAt: blockerSlot,
		Status:   StatusScheduled,
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("error = %v, want ErrSlotTaken", err)
	}
}

func TestEditKeepingOwnSlotSkipsGuard(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	doctor := repo.knownDoctor()
	appt := repo.addAppointment(uuid.New(), doctor, slot, StatusScheduled)

	// Same doctor, same instant: the appointment must not collide with itself.
	updated, err := svc.Edit(actorCtx(), EditInput{
		ID:       appt.ID,
		DoctorID: doctor,
		StartsAt: slot,
		Status:   StatusScheduled,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !updated.StartsAt.Equal(slot) {
		t.Fatalf("starts_at = %s, want %s", updated.StartsAt, slot)
	}
}

func TestEditAwayFromScheduledSkipsGuard(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	doctor := repo.knownDoctor()
	occupied := slot.Add(time.Hour)
	repo.addAppointment(uuid.New(), doctor, occupied, StatusScheduled)
	appt := repo.addAppointment(uuid.New(), doctor, slot, StatusScheduled)

	// Moving onto an occupied slot is fine when the appointment leaves the
	// scheduled state in the same edit.
	updated, err := svc.Edit(actorCtx(), EditInput{
		ID:       appt.ID,
		DoctorID: doctor,
		StartsAt: occupied,
		Status:   StatusCancelled,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", updated.Status)
	}
}

func TestEditTerminalStatusChangeRejected(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	doctor := repo.knownDoctor()
	appt := repo.addAppointment(uuid.New(), doctor, slot, StatusCompleted)

	_, err := svc.Edit(actorCtx(), EditInput{
		ID:       appt.ID,
		DoctorID: doctor,
		StartsAt: slot,
		Status:   StatusScheduled,
	})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("error = %v, want ErrTerminalState", err)
	}
}

func TestEditInvalidStatus(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	_, err := svc.Edit(actorCtx(), EditInput{
		ID:       uuid.New(),
		DoctorID: uuid.New(),
		StartsAt: slot,
		Status:   Status("rescheduled"),
	})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("error = %v, want ErrInvalidStatus", err)
	}
}

func TestCompleteForVisitEarliestWins(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	patient := uuid.New()
	doctor := uuid.New()
	later := repo.addAppointment(patient, doctor, slot.Add(3*time.Hour), StatusScheduled)
	earlier := repo.addAppointment(patient, doctor, slot, StatusScheduled)

	completed, err := svc.CompleteForVisit(actorCtx(), patient, doctor, slot.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("complete for visit: %v", err)
	}
	if completed == nil {
		t.Fatal("expected an appointment to be completed")
	}
	if completed.ID != earlier.ID {
		t.Fatalf("completed %s, want earliest %s", completed.ID, earlier.ID)
	}

	remaining, _ := repo.GetByID(context.Background(), later.ID)
	if remaining.Status != StatusScheduled {
		t.Fatalf("later appointment status = %s, want scheduled", remaining.Status)
	}
}

func TestCompleteForVisitIgnoresOtherDaysAndStates(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	patient := uuid.New()
	doctor := uuid.New()
	repo.addAppointment(patient, doctor, slot.AddDate(0, 0, 1), StatusScheduled)
	repo.addAppointment(patient, doctor, slot, StatusCancelled)
	repo.addAppointment(patient, uuid.New(), slot, StatusScheduled)

	completed, err := svc.CompleteForVisit(actorCtx(), patient, doctor, slot)
	if err != nil {
		t.Fatalf("complete for visit: %v", err)
	}
	if completed != nil {
		t.Fatalf("expected no-op, completed %s", completed.ID)
	}
}

func TestIsSlotAvailable(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	doctor := uuid.New()
	repo.addAppointment(uuid.New(), doctor, slot, StatusScheduled)

	free, err := svc.IsSlotAvailable(context.Background(), doctor, slot, nil)
	if err != nil {
		t.Fatalf("availability check: %v", err)
	}
	if free {
		t.Fatal("occupied slot reported available")
	}

	free, err = svc.IsSlotAvailable(context.Background(), doctor, slot.Add(time.Minute), nil)
	if err != nil {
		t.Fatalf("availability check: %v", err)
	}
	if !free {
		t.Fatal("free slot reported occupied")
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusScheduled.Terminal() {
		t.Fatal("scheduled must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("completed and cancelled must be terminal")
	}
}
