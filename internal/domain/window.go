package domain

// DeliveryWindow — повторяющееся окно (дни недели + время суток),
// в которое разрешено отправлять сообщения.
//
// Время задаётся в формате HH:mm в часовом поясе Timezone;
// EndTime не входит в окно. Weekdays: 0 — воскресенье, 6 — суббота.
type DeliveryWindow struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Weekdays  []int  `json:"weekdays,omitempty"`
}

// BusinessHours возвращает окно Пн–Пт 09:00–17:00 в указанном часовом поясе.
func BusinessHours(timezone string) DeliveryWindow {
	return DeliveryWindow{
		Enabled:   true,
		StartTime: "09:00",
		EndTime:   "17:00",
		Timezone:  timezone,
		Weekdays:  []int{1, 2, 3, 4, 5},
	}
}
