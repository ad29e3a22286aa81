package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"quickedit/internal/apperr"
)

// CadenceUnit is the unit of a recurring trigger interval.
type CadenceUnit string

const (
	UnitMinutes CadenceUnit = "minutes"
	UnitHours   CadenceUnit = "hours"
	UnitDays    CadenceUnit = "days"
)

// Cadence is a recurring interval expressed as (value, unit).
type Cadence struct {
	Every int         `json:"every"`
	Unit  CadenceUnit `json:"period"`
}

// ParseCadence validates raw caller input and returns the normalized cadence.
func ParseCadence(every, period string) (Cadence, error) {
	n, err := strconv.Atoi(strings.TrimSpace(every))
	if err != nil {
		return Cadence{}, apperr.Validation("invalid cadence value %q", every)
	}
	return NewCadence(n, CadenceUnit(strings.ToLower(strings.TrimSpace(period))))
}

// NewCadence validates and normalizes a cadence.
func NewCadence(every int, unit CadenceUnit) (Cadence, error) {
	c := Cadence{Every: every, Unit: unit}
	if err := c.Validate(); err != nil {
		return Cadence{}, err
	}
	return c.Normalize(), nil
}

// MaxInterval is the longest cadence a trigger may have.
const MaxInterval = 366 * 24 * time.Hour

// Validate checks the value is positive, the unit is known and the interval
// does not exceed MaxInterval.
func (c Cadence) Validate() error {
	if c.Every <= 0 {
		return apperr.Validation("cadence value must be positive, got %d", c.Every)
	}
	var unit time.Duration
	switch c.Unit {
	case UnitMinutes:
		unit = time.Minute
	case UnitHours:
		unit = time.Hour
	case UnitDays:
		unit = 24 * time.Hour
	default:
		return apperr.Validation("invalid cadence period %q", c.Unit)
	}
	if c.Every > int(MaxInterval/unit) {
		return apperr.Validation("cadence %d %s exceeds %d days", c.Every, c.Unit, int(MaxInterval/(24*time.Hour)))
	}
	return nil
}

// Normalize folds equivalent representations: 60 minutes becomes 1 hour and
// 24 hours becomes 1 day.
func (c Cadence) Normalize() Cadence {
	if c.Unit == UnitMinutes && c.Every%60 == 0 {
		c = Cadence{Every: c.Every / 60, Unit: UnitHours}
	}
	if c.Unit == UnitHours && c.Every%24 == 0 {
		c = Cadence{Every: c.Every / 24, Unit: UnitDays}
	}
	return c
}

// Interval converts the cadence to a duration.
func (c Cadence) Interval() time.Duration {
	switch c.Unit {
	case UnitHours:
		return time.Duration(c.Every) * time.Hour
	case UnitDays:
		return time.Duration(c.Every) * 24 * time.Hour
	default:
		return time.Duration(c.Every) * time.Minute
	}
}

// Spec renders the cadence as a robfig/cron descriptor.
func (c Cadence) Spec() string {
	return "@every " + c.Interval().String()
}

func (c Cadence) String() string {
	return fmt.Sprintf("%d %s", c.Every, c.Unit)
}

// Trigger is a recurring schedule owned by the job scheduler.
type Trigger struct {
	ID        string    `json:"id"`
	Cadence   Cadence   `json:"cadence"`
	CreatedAt time.Time `json:"time"`
	Job       SyncJob   `json:"job"`
}

// TriggerID composes an id from the cadence and the creation time.
func TriggerID(c Cadence, createdAt time.Time) string {
	return fmt.Sprintf("%d-%s-%d", c.Every, c.Unit, createdAt.UnixNano())
}
