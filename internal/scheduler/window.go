package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Fieldflow/internal/domain"
)

var (
	// ErrScheduling — окно доставки настроено некорректно
	// (часовой пояс, формат времени, дни недели).
	ErrScheduling = errors.New("scheduling error")

	// ErrNoDeliverySlot — в пределах просмотра не нашлось момента в окне.
	// Конфигурация при этом корректна.
	ErrNoDeliverySlot = errors.New("no delivery slot")
)

// maxScanDays — сколько дней вперёд просматривает NextDeliveryTime.
// Две недели: окно единственного дня может целиком попасть в час,
// пропущенный при переходе на летнее время.
const maxScanDays = 14

// window — разобранное окно доставки.
type window struct {
	loc      *time.Location
	start    int // секунды от полуночи
	end      int // секунды от полуночи, не входит в окно
	weekdays [7]bool
}

// ValidateWindow проверяет окно доставки.
// Выключенное окно всегда валидно.
func ValidateWindow(w domain.DeliveryWindow) error {
	if !w.Enabled {
		return nil
	}
	_, err := parseWindow(w)
	return err
}

// IsWithinWindow проверяет, попадает ли t в окно:
// день недели t (в часовом поясе окна) входит в Weekdays и
// StartTime ≤ время t < EndTime.
//
// Выключенное окно пропускает любое время.
func IsWithinWindow(w domain.DeliveryWindow, t time.Time) (bool, error) {
	if !w.Enabled {
		return true, nil
	}

	pw, err := parseWindow(w)
	if err != nil {
		return false, err
	}
	return pw.contains(t), nil
}

// NextDeliveryTime возвращает ближайший момент ≥ t, попадающий в окно (в UTC).
//
// Если t уже в окне — возвращает t. Иначе просматривает дни вперёд:
// сегодня (если окно ещё не началось), затем следующие разрешённые дни
// в StartTime. Просмотр ограничен maxScanDays; если подходящего дня нет,
// возвращается ErrNoDeliverySlot, а не текущее время.
func NextDeliveryTime(w domain.DeliveryWindow, t time.Time) (time.Time, error) {
	if !w.Enabled {
		return t.UTC(), nil
	}

	pw, err := parseWindow(w)
	if err != nil {
		return time.Time{}, err
	}

	if pw.contains(t) {
		return t.UTC(), nil
	}

	local := t.In(pw.loc)
	startHour, startMin := pw.start/3600, (pw.start%3600)/60

	for day := 0; day <= maxScanDays; day++ {
		candidate := time.Date(local.Year(), local.Month(), local.Day()+day,
			startHour, startMin, 0, 0, pw.loc)

		if !pw.weekdays[candidate.Weekday()] {
			continue
		}
		if !candidate.After(t) {
			// сегодняшнее окно уже началось (или закончилось)
			continue
		}
		// переход на летнее время может сдвинуть StartTime за пределы окна
		if !pw.contains(candidate) {
			continue
		}
		return candidate.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w within %d days", ErrNoDeliverySlot, maxScanDays)
}

func (pw *window) contains(t time.Time) bool {
	local := t.In(pw.loc)
	if !pw.weekdays[local.Weekday()] {
		return false
	}
	sec := local.Hour()*3600 + local.Minute()*60 + local.Second()
	return pw.start <= sec && sec < pw.end
}

func parseWindow(w domain.DeliveryWindow) (*window, error) {
	if w.Timezone == "" {
		return nil, fmt.Errorf("%w: timezone is empty", ErrScheduling)
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timezone %q: %v", ErrScheduling, w.Timezone, err)
	}

	start, err := parseClock(w.StartTime, false)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %v", ErrScheduling, err)
	}
	end, err := parseClock(w.EndTime, true)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %v", ErrScheduling, err)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: start_time %s must be before end_time %s",
			ErrScheduling, w.StartTime, w.EndTime)
	}

	if len(w.Weekdays) == 0 {
		return nil, fmt.Errorf("%w: weekdays is empty", ErrScheduling)
	}

	pw := &window{loc: loc, start: start, end: end}
	for _, d := range w.Weekdays {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: weekday %d out of range 0-6", ErrScheduling, d)
		}
		pw.weekdays[d] = true
	}
	return pw, nil
}

// parseClock разбирает "HH:mm" в секунды от полуночи.
// "24:00" допустимо только как конец окна.
func parseClock(s string, isEnd bool) (int, error) {
	if isEnd && s == "24:00" {
		return 24 * 3600, nil
	}

	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:mm", s)
	}
	return t.Hour()*3600 + t.Minute()*60, nil
}
