package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Fieldflow/internal/domain"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestIsWithinWindow(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	w := domain.BusinessHours("America/New_York")

	tests := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		{"понедельник 09:00 — начало входит", time.Date(2025, 3, 10, 9, 0, 0, 0, ny), true},
		{"понедельник 16:59:59", time.Date(2025, 3, 10, 16, 59, 59, 0, ny), true},
		{"понедельник 17:00 — конец не входит", time.Date(2025, 3, 10, 17, 0, 0, 0, ny), false},
		{"понедельник 08:59", time.Date(2025, 3, 10, 8, 59, 0, 0, ny), false},
		{"суббота 12:00", time.Date(2025, 3, 8, 12, 0, 0, 0, ny), false},
		{"UTC переводится в пояс окна", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsWithinWindow(w, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsWithinWindow_Disabled(t *testing.T) {
	got, err := IsWithinWindow(domain.DeliveryWindow{}, time.Now())
	require.NoError(t, err)
	assert.True(t, got)

	next, err := NextDeliveryTime(domain.DeliveryWindow{}, time.Date(2025, 3, 8, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 8, 3, 0, 0, 0, time.UTC), next)
}

func TestNextDeliveryTime(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	w := domain.BusinessHours("America/New_York")

	tests := []struct {
		name     string
		at       time.Time
		expected time.Time
	}{
		{
			name:     "суббота 14:00 → понедельник 09:00",
			at:       time.Date(2025, 3, 8, 14, 0, 0, 0, ny),
			expected: time.Date(2025, 3, 10, 9, 0, 0, 0, ny),
		},
		{
			name:     "до начала окна сегодня → сегодня 09:00",
			at:       time.Date(2025, 3, 11, 7, 30, 0, 0, ny),
			expected: time.Date(2025, 3, 11, 9, 0, 0, 0, ny),
		},
		{
			name:     "после конца окна → завтра 09:00",
			at:       time.Date(2025, 3, 11, 18, 0, 0, 0, ny),
			expected: time.Date(2025, 3, 12, 9, 0, 0, 0, ny),
		},
		{
			name:     "пятница вечер → понедельник",
			at:       time.Date(2025, 3, 14, 17, 0, 0, 0, ny),
			expected: time.Date(2025, 3, 17, 9, 0, 0, 0, ny),
		},
		{
			name:     "внутри окна → то же время",
			at:       time.Date(2025, 3, 12, 10, 15, 0, 0, ny),
			expected: time.Date(2025, 3, 12, 10, 15, 0, 0, ny),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextDeliveryTime(w, tt.at)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.expected), "got %s, want %s", got, tt.expected)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNextDeliveryTime_SameWeekdayNextWeek(t *testing.T) {
	w := domain.DeliveryWindow{
		Enabled:   true,
		StartTime: "10:00",
		EndTime:   "11:00",
		Timezone:  "UTC",
		Weekdays:  []int{3}, // только среда
	}

	// среда 12:00 — окно уже закончилось, следующая среда
	at := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	got, err := NextDeliveryTime(w, at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 19, 10, 0, 0, 0, time.UTC), got)
}

func TestNextDeliveryTime_WindowInsideSkippedHour(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	w := domain.DeliveryWindow{
		Enabled:   true,
		StartTime: "02:00",
		EndTime:   "02:30",
		Timezone:  "America/New_York",
		Weekdays:  []int{0}, // только воскресенье
	}

	// 10 марта 2024 02:00–03:00 не существует: ближайший слот через неделю
	at := time.Date(2024, 3, 9, 12, 0, 0, 0, ny)
	got, err := NextDeliveryTime(w, at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 17, 2, 0, 0, 0, ny).UTC(), got)

	ok, err := IsWithinWindow(w, got)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNextDeliveryTime_WindowOverlappingSkippedHour(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	w := domain.DeliveryWindow{
		Enabled:   true,
		StartTime: "02:00",
		EndTime:   "04:00",
		Timezone:  "America/New_York",
		Weekdays:  []int{0},
	}

	at := time.Date(2024, 3, 9, 12, 0, 0, 0, ny)
	got, err := NextDeliveryTime(w, at)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 3, 0, 0, 0, ny).UTC(), got)
}

// Свойства окна проверяются на сетке моментов с шагом 37 минут в течение
// двух недель для нескольких окон и часовых поясов.
func TestWindowProperties(t *testing.T) {
	windows := []domain.DeliveryWindow{
		domain.BusinessHours("America/New_York"),
		{Enabled: true, StartTime: "08:30", EndTime: "20:00", Timezone: "Europe/Moscow", Weekdays: []int{0, 6}},
		{Enabled: true, StartTime: "00:00", EndTime: "24:00", Timezone: "Asia/Tokyo", Weekdays: []int{2}},
		{Enabled: true, StartTime: "12:00", EndTime: "12:01", Timezone: "Australia/Sydney", Weekdays: []int{0, 1, 2, 3, 4, 5, 6}},
	}

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(14 * 24 * time.Hour)

	for _, w := range windows {
		loc := mustLoad(t, w.Timezone)
		allowed := make(map[time.Weekday]bool)
		for _, d := range w.Weekdays {
			allowed[time.Weekday(d)] = true
		}
		start, err := parseClock(w.StartTime, false)
		require.NoError(t, err)
		end, err := parseClock(w.EndTime, true)
		require.NoError(t, err)

		for at := from; at.Before(to); at = at.Add(37 * time.Minute) {
			local := at.In(loc)
			sec := local.Hour()*3600 + local.Minute()*60 + local.Second()
			want := allowed[local.Weekday()] && start <= sec && sec < end

			within, err := IsWithinWindow(w, at)
			require.NoError(t, err)
			require.Equal(t, want, within, "window %+v at %s", w, at)

			next, err := NextDeliveryTime(w, at)
			require.NoError(t, err)
			require.False(t, next.Before(at), "next %s before %s", next, at)

			ok, err := IsWithinWindow(w, next)
			require.NoError(t, err)
			require.True(t, ok, "next %s outside window %+v", next, w)
		}
	}
}

func TestValidateWindow(t *testing.T) {
	valid := domain.BusinessHours("America/New_York")

	tests := []struct {
		name   string
		modify func(w *domain.DeliveryWindow)
	}{
		{"пустые дни недели", func(w *domain.DeliveryWindow) { w.Weekdays = nil }},
		{"день недели вне диапазона", func(w *domain.DeliveryWindow) { w.Weekdays = []int{1, 7} }},
		{"неизвестный часовой пояс", func(w *domain.DeliveryWindow) { w.Timezone = "Mars/Olympus" }},
		{"пустой часовой пояс", func(w *domain.DeliveryWindow) { w.Timezone = "" }},
		{"плохой формат времени", func(w *domain.DeliveryWindow) { w.StartTime = "9am" }},
		{"начало после конца", func(w *domain.DeliveryWindow) { w.StartTime, w.EndTime = "18:00", "09:00" }},
		{"начало равно концу", func(w *domain.DeliveryWindow) { w.EndTime = w.StartTime }},
	}

	require.NoError(t, ValidateWindow(valid))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := valid
			w.Weekdays = append([]int(nil), valid.Weekdays...)
			tt.modify(&w)

			assert.ErrorIs(t, ValidateWindow(w), ErrScheduling)

			_, err := IsWithinWindow(w, time.Now())
			assert.ErrorIs(t, err, ErrScheduling)

			_, err = NextDeliveryTime(w, time.Now())
			assert.ErrorIs(t, err, ErrScheduling)
		})
	}
}

func TestValidateWindow_DisabledIgnoresFields(t *testing.T) {
	assert.NoError(t, ValidateWindow(domain.DeliveryWindow{Enabled: false, Timezone: "bad"}))
}
