package service

import (
	"time"

	"autoservice/internal/clock"
	"autoservice/internal/domain"
	"autoservice/internal/models"
)

// DatePolicy bounds the work dates that may be held or booked.
type DatePolicy struct {
	Clock          clock.Clock
	MaxAdvanceDays int
}

func (p DatePolicy) today() time.Time {
	return models.DateOnly(p.Clock.Now())
}

func (p DatePolicy) Validate(date time.Time) error {
	today := p.today()
	day := models.DateOnly(date)

	// Проверяем, что дата не в прошлом
	if day.Before(today) {
		return domain.ErrPastDate
	}

	// Проверяем максимальную дату
	if p.MaxAdvanceDays > 0 && day.After(today.AddDate(0, 0, p.MaxAdvanceDays)) {
		return domain.ErrDateTooFar
	}
	return nil
}

// slotStart is the moment a slot begins on date; ok is false for a malformed start time.
func slotStart(date time.Time, slot *models.TimeSlot) (time.Time, bool) {
	t, err := time.Parse(models.TimeFormat, slot.StartTime)
	if err != nil {
		return time.Time{}, false
	}
	day := models.DateOnly(date)
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), true
}
