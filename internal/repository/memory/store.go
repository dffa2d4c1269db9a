// Package memory хранилище движка в памяти процесса.
// Повторяет поведение PostgreSQL-репозиториев: уникальные ключи, каскадное удаление исключений,
// (nil, nil) для отсутствующей строки.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/repository"
	"github.com/google/uuid"
)

// Store общее состояние всех хранилищ
type Store struct {
	mu sync.RWMutex

	patterns   map[uuid.UUID]model.Pattern
	exceptions map[uuid.UUID]model.Exception
	slots      map[uuid.UUID]model.MaterializedSlot
	bookings   map[int64]model.Booking

	nextBookingID int64
	now           func() time.Time

	Patterns   *PatternStore
	Exceptions *ExceptionStore
	Slots      *SlotStore
	Bookings   *BookingStore
}

// New создаёт пустое хранилище
func New() *Store {
	s := &Store{
		patterns:   make(map[uuid.UUID]model.Pattern),
		exceptions: make(map[uuid.UUID]model.Exception),
		slots:      make(map[uuid.UUID]model.MaterializedSlot),
		bookings:   make(map[int64]model.Booking),
		now:        time.Now,
	}
	s.Patterns = &PatternStore{s: s}
	s.Exceptions = &ExceptionStore{s: s}
	s.Slots = &SlotStore{s: s}
	s.Bookings = &BookingStore{s: s}
	return s
}

type PatternStore struct{ s *Store }

func (p *PatternStore) Create(_ context.Context, pattern *model.Pattern) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, ok := p.s.patterns[pattern.ID]; ok {
		return repository.ErrDuplicate
	}
	now := p.s.now()
	pattern.CreatedAt, pattern.UpdatedAt = now, now
	p.s.patterns[pattern.ID] = clonePattern(*pattern)
	return nil
}

func (p *PatternStore) GetByID(_ context.Context, id uuid.UUID) (*model.Pattern, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	pattern, ok := p.s.patterns[id]
	if !ok {
		return nil, nil
	}
	out := clonePattern(pattern)
	return &out, nil
}

func (p *PatternStore) ListByOwner(_ context.Context, ownerID int64) ([]*model.Pattern, error) {
	return p.filter(func(pattern *model.Pattern) bool { return pattern.OwnerID == ownerID }), nil
}

func (p *PatternStore) ListNeedingMigration(_ context.Context) ([]*model.Pattern, error) {
	return p.filter(func(pattern *model.Pattern) bool {
		return pattern.TimezoneStorageFormat == model.StorageFormatLegacy
	}), nil
}

func (p *PatternStore) filter(keep func(*model.Pattern) bool) []*model.Pattern {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var out []*model.Pattern
	for _, pattern := range p.s.patterns {
		if keep(&pattern) {
			cp := clonePattern(pattern)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (p *PatternStore) Update(_ context.Context, pattern *model.Pattern) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, ok := p.s.patterns[pattern.ID]; !ok {
		return nil
	}
	pattern.UpdatedAt = p.s.now()
	p.s.patterns[pattern.ID] = clonePattern(*pattern)
	return nil
}

// Delete удаляет шаблон вместе с его исключениями
func (p *PatternStore) Delete(_ context.Context, id uuid.UUID) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	delete(p.s.patterns, id)
	for excID, exc := range p.s.exceptions {
		if exc.ParentPatternID == id {
			delete(p.s.exceptions, excID)
		}
	}
	return nil
}

type ExceptionStore struct{ s *Store }

func (e *ExceptionStore) Create(_ context.Context, exc *model.Exception) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	date := model.Date(exc.ExceptionDate)
	for _, existing := range e.s.exceptions {
		if existing.ParentPatternID == exc.ParentPatternID && existing.ExceptionDate.Equal(date) {
			return repository.ErrDuplicate
		}
	}

	exc.ExceptionDate = date
	exc.CreatedAt = e.s.now()
	e.s.exceptions[exc.ID] = cloneException(*exc)
	return nil
}

func (e *ExceptionStore) GetByDate(_ context.Context, patternID uuid.UUID, date time.Time) (*model.Exception, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()

	date = model.Date(date)
	for _, exc := range e.s.exceptions {
		if exc.ParentPatternID == patternID && exc.ExceptionDate.Equal(date) {
			out := cloneException(exc)
			return &out, nil
		}
	}
	return nil, nil
}

func (e *ExceptionStore) ListInRange(_ context.Context, patternID uuid.UUID, from, to time.Time) ([]*model.Exception, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()

	from, to = model.Date(from), model.Date(to)
	var out []*model.Exception
	for _, exc := range e.s.exceptions {
		if exc.ParentPatternID != patternID {
			continue
		}
		if exc.ExceptionDate.Before(from) || exc.ExceptionDate.After(to) {
			continue
		}
		cp := cloneException(exc)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExceptionDate.Before(out[j].ExceptionDate) })
	return out, nil
}

func (e *ExceptionStore) Delete(_ context.Context, id uuid.UUID) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	delete(e.s.exceptions, id)
	return nil
}

func (e *ExceptionStore) DeleteByPattern(_ context.Context, patternID uuid.UUID) (int64, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	var deleted int64
	for id, exc := range e.s.exceptions {
		if exc.ParentPatternID == patternID {
			delete(e.s.exceptions, id)
			deleted++
		}
	}
	return deleted, nil
}

type SlotStore struct{ s *Store }

func (sl *SlotStore) Create(_ context.Context, slot *model.MaterializedSlot) error {
	sl.s.mu.Lock()
	defer sl.s.mu.Unlock()

	if _, ok := sl.s.slots[slot.ID]; ok {
		return repository.ErrDuplicate
	}
	now := sl.s.now()
	slot.SpecificDate = model.Date(slot.SpecificDate)
	slot.CreatedAt, slot.UpdatedAt = now, now
	sl.s.slots[slot.ID] = cloneSlot(*slot)
	return nil
}

func (sl *SlotStore) GetByID(_ context.Context, id uuid.UUID) (*model.MaterializedSlot, error) {
	sl.s.mu.RLock()
	defer sl.s.mu.RUnlock()

	slot, ok := sl.s.slots[id]
	if !ok {
		return nil, nil
	}
	out := cloneSlot(slot)
	return &out, nil
}

func (sl *SlotStore) ListByOwner(_ context.Context, ownerID int64, from, to time.Time) ([]*model.MaterializedSlot, error) {
	from, to = model.Date(from), model.Date(to)
	return sl.filter(func(slot *model.MaterializedSlot) bool {
		return slot.OwnerID == ownerID && !slot.SpecificDate.Before(from) && !slot.SpecificDate.After(to)
	}), nil
}

func (sl *SlotStore) ListByParent(_ context.Context, patternID uuid.UUID, since *time.Time) ([]*model.MaterializedSlot, error) {
	return sl.filter(func(slot *model.MaterializedSlot) bool {
		if slot.ParentPatternID == nil || *slot.ParentPatternID != patternID {
			return false
		}
		return since == nil || !slot.SpecificDate.Before(model.Date(*since))
	}), nil
}

func (sl *SlotStore) ListByParentAndDate(_ context.Context, patternID uuid.UUID, date time.Time) ([]*model.MaterializedSlot, error) {
	date = model.Date(date)
	return sl.filter(func(slot *model.MaterializedSlot) bool {
		return slot.ParentPatternID != nil && *slot.ParentPatternID == patternID && slot.SpecificDate.Equal(date)
	}), nil
}

func (sl *SlotStore) CountByParent(ctx context.Context, patternID uuid.UUID) (int, error) {
	slots, err := sl.ListByParent(ctx, patternID, nil)
	return len(slots), err
}

func (sl *SlotStore) Update(_ context.Context, slot *model.MaterializedSlot) error {
	sl.s.mu.Lock()
	defer sl.s.mu.Unlock()

	if _, ok := sl.s.slots[slot.ID]; !ok {
		return nil
	}
	slot.UpdatedAt = sl.s.now()
	sl.s.slots[slot.ID] = cloneSlot(*slot)
	return nil
}

func (sl *SlotStore) Delete(_ context.Context, id uuid.UUID) error {
	sl.s.mu.Lock()
	defer sl.s.mu.Unlock()

	delete(sl.s.slots, id)
	return nil
}

func (sl *SlotStore) filter(keep func(*model.MaterializedSlot) bool) []*model.MaterializedSlot {
	sl.s.mu.RLock()
	defer sl.s.mu.RUnlock()

	var out []*model.MaterializedSlot
	for _, slot := range sl.s.slots {
		if keep(&slot) {
			cp := cloneSlot(slot)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SpecificDate.Equal(out[j].SpecificDate) {
			return out[i].SpecificDate.Before(out[j].SpecificDate)
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

type BookingStore struct{ s *Store }

// Create повторяет частичный уникальный индекс bookings:
// одно активное бронирование на источник и момент начала
func (b *BookingStore) Create(_ context.Context, booking *model.Booking) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	if !booking.Status.IsTerminal() {
		for _, existing := range b.s.bookings {
			if existing.Status.IsTerminal() {
				continue
			}
			if existing.AvailabilityRef == booking.AvailabilityRef && existing.ScheduledAt.Equal(booking.ScheduledAt) {
				return repository.ErrDuplicate
			}
		}
	}

	b.s.nextBookingID++
	now := b.s.now()
	booking.ID = b.s.nextBookingID
	booking.CreatedAt, booking.UpdatedAt = now, now
	b.s.bookings[booking.ID] = *booking
	return nil
}

func (b *BookingStore) ListByRef(_ context.Context, ref model.AvailabilityRef) ([]*model.Booking, error) {
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()

	var out []*model.Booking
	for _, booking := range b.s.bookings {
		if booking.AvailabilityRef == ref {
			cp := booking
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (b *BookingStore) UpdateStatus(_ context.Context, id int64, status model.BookingStatus) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	booking, ok := b.s.bookings[id]
	if !ok {
		return nil
	}
	booking.Status = status
	booking.UpdatedAt = b.s.now()
	b.s.bookings[id] = booking
	return nil
}

func clonePattern(p model.Pattern) model.Pattern {
	p.RecurrenceWeekdays = append(model.WeekdaySet(nil), p.RecurrenceWeekdays...)
	if p.PatternStartDate != nil {
		d := *p.PatternStartDate
		p.PatternStartDate = &d
	}
	if p.PatternEndDate != nil {
		d := *p.PatternEndDate
		p.PatternEndDate = &d
	}
	if p.CourseID != nil {
		c := *p.CourseID
		p.CourseID = &c
	}
	return p
}

func cloneException(e model.Exception) model.Exception {
	if e.ModifiedStartTime != nil {
		c := *e.ModifiedStartTime
		e.ModifiedStartTime = &c
	}
	if e.ModifiedEndTime != nil {
		c := *e.ModifiedEndTime
		e.ModifiedEndTime = &c
	}
	if e.ModifiedTimezone != nil {
		tz := *e.ModifiedTimezone
		e.ModifiedTimezone = &tz
	}
	return e
}

func cloneSlot(s model.MaterializedSlot) model.MaterializedSlot {
	if s.ParentPatternID != nil {
		id := *s.ParentPatternID
		s.ParentPatternID = &id
	}
	if s.CourseID != nil {
		c := *s.CourseID
		s.CourseID = &c
	}
	return s
}
