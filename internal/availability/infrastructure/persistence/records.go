package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/slotwise/internal/availability/domain"
)

type rangeRecord struct {
	Start domain.ClockTime `json:"start"`
	End   domain.ClockTime `json:"end"`
}

type ruleRecord struct {
	Weekday string `json:"weekday"`
	rangeRecord
}

type overrideRecord struct {
	Date   domain.Date   `json:"date"`
	Ranges []rangeRecord `json:"ranges"`
}

func encodeRules(rules []domain.WeeklyRule) ([]byte, error) {
	out := make([]ruleRecord, len(rules))
	for i, r := range rules {
		out[i] = ruleRecord{
			Weekday:     strings.ToLower(r.Weekday.String()),
			rangeRecord: rangeRecord{Start: r.Start, End: r.End},
		}
	}
	return json.Marshal(out)
}

func decodeRules(data []byte) ([]domain.WeeklyRule, error) {
	var records []ruleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	rules := make([]domain.WeeklyRule, len(records))
	for i, r := range records {
		day, err := domain.ParseWeekday(r.Weekday)
		if err != nil {
			return nil, err
		}
		rules[i] = domain.WeeklyRule{Weekday: day, LocalRange: domain.LocalRange{Start: r.Start, End: r.End}}
	}
	return rules, nil
}

func encodeOverrides(overrides []domain.DateOverride) ([]byte, error) {
	out := make([]overrideRecord, len(overrides))
	for i, o := range overrides {
		ranges := make([]rangeRecord, len(o.Ranges))
		for j, r := range o.Ranges {
			ranges[j] = rangeRecord{Start: r.Start, End: r.End}
		}
		out[i] = overrideRecord{Date: o.Date, Ranges: ranges}
	}
	return json.Marshal(out)
}

func decodeOverrides(data []byte) ([]domain.DateOverride, error) {
	var records []overrideRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode overrides: %w", err)
	}
	out := make([]domain.DateOverride, len(records))
	for i, o := range records {
		var ranges []domain.LocalRange
		for _, r := range o.Ranges {
			ranges = append(ranges, domain.LocalRange{Start: r.Start, End: r.End})
		}
		out[i] = domain.DateOverride{Date: o.Date, Ranges: ranges}
	}
	return out, nil
}

// scheduleRow is a schedules row with dialect differences already resolved.
type scheduleRow struct {
	ID        string
	HostID    string
	Name      string
	TimeZone  string
	Rules     []byte
	Overrides []byte
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r scheduleRow) toDomain() (*domain.Schedule, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("schedule id: %w", err)
	}
	hostID, err := uuid.Parse(r.HostID)
	if err != nil {
		return nil, fmt.Errorf("schedule host id: %w", err)
	}
	rules, err := decodeRules(r.Rules)
	if err != nil {
		return nil, err
	}
	overrides, err := decodeOverrides(r.Overrides)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateSchedule(id, hostID, r.Name, r.TimeZone, rules, overrides, r.CreatedAt, r.UpdatedAt, r.Version)
}

func newScheduleRow(s *domain.Schedule) (scheduleRow, error) {
	rules, err := encodeRules(s.Rules())
	if err != nil {
		return scheduleRow{}, err
	}
	overrides, err := encodeOverrides(s.Overrides())
	if err != nil {
		return scheduleRow{}, err
	}
	return scheduleRow{
		ID:        s.ID().String(),
		HostID:    s.HostID().String(),
		Name:      s.Name(),
		TimeZone:  s.TimeZone(),
		Rules:     rules,
		Overrides: overrides,
		Version:   s.Version(),
		CreatedAt: s.CreatedAt(),
		UpdatedAt: s.UpdatedAt(),
	}, nil
}

// eventTypeRow is an event_types row with dialect differences resolved.
type eventTypeRow struct {
	ID                   string
	HostID               string
	ScheduleID           string
	Slug                 string
	Title                string
	DurationSeconds      int64
	BufferBeforeSeconds  int64
	BufferAfterSeconds   int64
	MinimumNoticeSeconds int64
	GranularitySeconds   int64
	MinDaysAhead         int
	MaxDaysAhead         int
	Recurrence           []byte
	RequiresConfirmation bool
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func seconds(n int64) time.Duration { return time.Duration(n) * time.Second }

func (r eventTypeRow) toDomain() (*domain.EventType, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("event type id: %w", err)
	}
	hostID, err := uuid.Parse(r.HostID)
	if err != nil {
		return nil, fmt.Errorf("event type host id: %w", err)
	}
	scheduleID, err := uuid.Parse(r.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("event type schedule id: %w", err)
	}
	var recurrence domain.RecurrencePolicy
	if err := json.Unmarshal(r.Recurrence, &recurrence); err != nil {
		return nil, fmt.Errorf("decode recurrence: %w", err)
	}
	return domain.RehydrateEventType(id, domain.EventTypeParams{
		HostID:               hostID,
		ScheduleID:           scheduleID,
		Slug:                 r.Slug,
		Title:                r.Title,
		Duration:             seconds(r.DurationSeconds),
		BufferBefore:         seconds(r.BufferBeforeSeconds),
		BufferAfter:          seconds(r.BufferAfterSeconds),
		MinimumNotice:        seconds(r.MinimumNoticeSeconds),
		Granularity:          seconds(r.GranularitySeconds),
		Window:               domain.BookingWindow{MinDaysAhead: r.MinDaysAhead, MaxDaysAhead: r.MaxDaysAhead},
		Recurrence:           recurrence,
		RequiresConfirmation: r.RequiresConfirmation,
	}, r.CreatedAt, r.UpdatedAt, r.Version)
}

func newEventTypeRow(et *domain.EventType) (eventTypeRow, error) {
	recurrence, err := json.Marshal(et.Recurrence())
	if err != nil {
		return eventTypeRow{}, err
	}
	p := et.Params()
	return eventTypeRow{
		ID:                   et.ID().String(),
		HostID:               p.HostID.String(),
		ScheduleID:           p.ScheduleID.String(),
		Slug:                 p.Slug,
		Title:                p.Title,
		DurationSeconds:      int64(p.Duration / time.Second),
		BufferBeforeSeconds:  int64(p.BufferBefore / time.Second),
		BufferAfterSeconds:   int64(p.BufferAfter / time.Second),
		MinimumNoticeSeconds: int64(p.MinimumNotice / time.Second),
		GranularitySeconds:   int64(p.Granularity / time.Second),
		MinDaysAhead:         p.Window.MinDaysAhead,
		MaxDaysAhead:         p.Window.MaxDaysAhead,
		Recurrence:           recurrence,
		RequiresConfirmation: p.RequiresConfirmation,
		Version:              et.Version(),
		CreatedAt:            et.CreatedAt(),
		UpdatedAt:            et.UpdatedAt(),
	}, nil
}
