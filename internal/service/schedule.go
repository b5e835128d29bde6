package service

import "time"

// Slot is the computed work window of one item
type Slot struct {
	Start  time.Time
	Finish time.Time
}

// Fold chains the items one after another from start: each item begins when
// the previous one finishes and lasts its estimated minutes. Items without an
// estimate take no time.
func Fold(start time.Time, minutes []*int) []Slot {
	slots := make([]Slot, len(minutes))
	cursor := start
	for i, m := range minutes {
		finish := cursor
		if m != nil && *m > 0 {
			finish = cursor.Add(time.Duration(*m) * time.Minute)
		}
		slots[i] = Slot{Start: cursor, Finish: finish}
		cursor = finish
	}
	return slots
}

// foldStart is the later of now and the assignee's last finish
func foldStart(now time.Time, lastFinish *time.Time) time.Time {
	if lastFinish != nil && lastFinish.After(now) {
		return *lastFinish
	}
	return now
}
