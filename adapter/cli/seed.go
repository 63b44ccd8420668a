package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	availabilityCommands "github.com/felixgeelhaar/slotwise/internal/availability/application/commands"
	availabilityDomain "github.com/felixgeelhaar/slotwise/internal/availability/domain"
)

// SeedFile is the YAML layout accepted by the seed command.
//
//	hosts:
//	  - id: 9b0e6a52-...
//	    schedules:
//	      - name: Office hours
//	        time_zone: Europe/Berlin
//	        rules:
//	          - { weekday: mon, start: "09:00", end: "17:00" }
//	        overrides:
//	          - { date: 2026-12-24, ranges: [] }
//	    event_types:
//	      - slug: intro
//	        title: Intro call
//	        schedule: Office hours
//	        duration: 30m
type SeedFile struct {
	Hosts []SeedHost `yaml:"hosts"`
}

// SeedHost groups the schedules and event types of one host.
type SeedHost struct {
	ID         string          `yaml:"id"`
	Schedules  []SeedSchedule  `yaml:"schedules"`
	EventTypes []SeedEventType `yaml:"event_types"`
}

// SeedSchedule describes a weekly schedule.
type SeedSchedule struct {
	Name      string         `yaml:"name"`
	TimeZone  string         `yaml:"time_zone"`
	Rules     []SeedRule     `yaml:"rules"`
	Overrides []SeedOverride `yaml:"overrides"`
}

// SeedRule is one weekday range.
type SeedRule struct {
	Weekday string `yaml:"weekday"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

// SeedRange is a local time range inside an override.
type SeedRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// SeedOverride replaces the rules on one date. No ranges closes the day.
type SeedOverride struct {
	Date   string      `yaml:"date"`
	Ranges []SeedRange `yaml:"ranges"`
}

// SeedEventType describes an event type. Schedule refers to a schedule of
// the same host by name. Durations use Go syntax ("30m", "1h30m").
type SeedEventType struct {
	Slug                 string                              `yaml:"slug"`
	Title                string                              `yaml:"title"`
	Schedule             string                              `yaml:"schedule"`
	Duration             string                              `yaml:"duration"`
	BufferBefore         string                              `yaml:"buffer_before"`
	BufferAfter          string                              `yaml:"buffer_after"`
	MinimumNotice        string                              `yaml:"minimum_notice"`
	Granularity          string                              `yaml:"granularity"`
	MinDaysAhead         int                                 `yaml:"min_days_ahead"`
	MaxDaysAhead         int                                 `yaml:"max_days_ahead"`
	Recurrence           availabilityDomain.RecurrencePolicy `yaml:"recurrence"`
	RequiresConfirmation bool                                `yaml:"requires_confirmation"`
}

// SeedReport summarizes what Apply created or updated.
type SeedReport struct {
	SchedulesCreated  int
	SchedulesUpdated  int
	EventTypesCreated int
	EventTypesUpdated int
	EventTypeIDs      map[string]uuid.UUID
}

// LoadSeed decodes a seed file. Unknown keys are rejected.
func LoadSeed(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file SeedFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &file, nil
}

// Apply upserts every schedule and then every event type of each host.
// It stops at the first failure; what was applied before stays applied.
func (f *SeedFile) Apply(ctx context.Context, schedules ScheduleUpserter, eventTypes EventTypeUpserter) (*SeedReport, error) {
	report := &SeedReport{EventTypeIDs: make(map[string]uuid.UUID)}

	for i, host := range f.Hosts {
		hostID, err := uuid.Parse(host.ID)
		if err != nil {
			return report, fmt.Errorf("hosts[%d]: invalid id %q", i, host.ID)
		}

		scheduleIDs := make(map[string]uuid.UUID, len(host.Schedules))
		for _, s := range host.Schedules {
			res, err := schedules.Handle(ctx, s.command(hostID))
			if err != nil {
				return report, fmt.Errorf("schedule %q: %w", s.Name, err)
			}
			scheduleIDs[s.Name] = res.ScheduleID
			if res.Created {
				report.SchedulesCreated++
			} else {
				report.SchedulesUpdated++
			}
		}

		for _, et := range host.EventTypes {
			scheduleID, ok := scheduleIDs[et.Schedule]
			if !ok {
				return report, fmt.Errorf("event type %q: unknown schedule %q", et.Slug, et.Schedule)
			}
			cmd, err := et.command(hostID, scheduleID)
			if err != nil {
				return report, fmt.Errorf("event type %q: %w", et.Slug, err)
			}
			res, err := eventTypes.Handle(ctx, cmd)
			if err != nil {
				return report, fmt.Errorf("event type %q: %w", et.Slug, err)
			}
			report.EventTypeIDs[et.Slug] = res.EventTypeID
			if res.Created {
				report.EventTypesCreated++
			} else {
				report.EventTypesUpdated++
			}
		}
	}
	return report, nil
}

func (s SeedSchedule) command(hostID uuid.UUID) availabilityCommands.UpsertScheduleCommand {
	cmd := availabilityCommands.UpsertScheduleCommand{
		HostID:   hostID,
		Name:     s.Name,
		TimeZone: s.TimeZone,
	}
	for _, r := range s.Rules {
		cmd.Rules = append(cmd.Rules, availabilityCommands.RuleInput{
			Weekday:    r.Weekday,
			RangeInput: availabilityCommands.RangeInput{Start: r.Start, End: r.End},
		})
	}
	for _, o := range s.Overrides {
		ranges := make([]availabilityCommands.RangeInput, 0, len(o.Ranges))
		for _, r := range o.Ranges {
			ranges = append(ranges, availabilityCommands.RangeInput{Start: r.Start, End: r.End})
		}
		cmd.Overrides = append(cmd.Overrides, availabilityCommands.OverrideInput{Date: o.Date, Ranges: ranges})
	}
	return cmd
}

func (e SeedEventType) command(hostID, scheduleID uuid.UUID) (availabilityCommands.UpsertEventTypeCommand, error) {
	cmd := availabilityCommands.UpsertEventTypeCommand{
		HostID:               hostID,
		ScheduleID:           scheduleID,
		Slug:                 e.Slug,
		Title:                e.Title,
		MinDaysAhead:         e.MinDaysAhead,
		MaxDaysAhead:         e.MaxDaysAhead,
		Recurrence:           e.Recurrence,
		RequiresConfirmation: e.RequiresConfirmation,
	}
	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"duration", e.Duration, &cmd.Duration},
		{"buffer_before", e.BufferBefore, &cmd.BufferBefore},
		{"buffer_after", e.BufferAfter, &cmd.BufferAfter},
		{"minimum_notice", e.MinimumNotice, &cmd.MinimumNotice},
		{"granularity", e.Granularity, &cmd.Granularity},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return cmd, fmt.Errorf("invalid %s %q", d.name, d.value)
		}
		*d.dst = v
	}
	return cmd, nil
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load schedules and event types from a YAML file",
	Long: `Create or update schedules and event types from a YAML file. Schedules
are matched by host and name, event types by host and slug, so seeding the
same file twice updates in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.UpsertSchedule == nil || app.UpsertEventType == nil {
			return errNotConnected
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		file, err := LoadSeed(f)
		if err != nil {
			return err
		}
		report, err := file.Apply(cmd.Context(), app.UpsertSchedule, app.UpsertEventType)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Schedules:   %d created, %d updated\n", report.SchedulesCreated, report.SchedulesUpdated)
		fmt.Fprintf(out, "Event types: %d created, %d updated\n", report.EventTypesCreated, report.EventTypesUpdated)
		for slug, id := range report.EventTypeIDs {
			fmt.Fprintf(out, "  %-20s %s\n", slug, id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
