package audit

import "time"

// BusinessHours describes the working window used by after-hours rules.
type BusinessHours struct {
	Location  *time.Location
	StartHour int
	EndHour   int
	Workdays  []time.Weekday
}

// DefaultBusinessHours is Monday to Friday, 08:00 to 18:00 local time.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		Location:  time.Local,
		StartHour: 8,
		EndHour:   18,
		Workdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

// Contains reports whether t falls inside business hours. The end hour is exclusive.
func (b BusinessHours) Contains(t time.Time) bool {
	loc := b.Location
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	workday := false
	for _, d := range b.Workdays {
		if local.Weekday() == d {
			workday = true
			break
		}
	}
	if !workday {
		return false
	}
	h := local.Hour()
	return h >= b.StartHour && h < b.EndHour
}
