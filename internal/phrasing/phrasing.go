// Package phrasing renders user-facing reminder copy. Pure functions,
// no state.
package phrasing

import "fmt"

// Text is a rendered reminder title/body pair.
type Text struct {
	Title string
	Body  string
}

// RenderReminderText produces the notification copy for a program reminder.
// Offset 0 ("deadline is today") reads differently from future offsets.
func RenderReminderText(programName string, offsetDays int) Text {
	var title string
	if offsetDays == 0 {
		title = fmt.Sprintf("오늘 마감! %s", programName)
	} else {
		title = fmt.Sprintf("%d일 후 마감! %s", offsetDays, programName)
	}
	return Text{
		Title: title,
		Body:  fmt.Sprintf("%s 사업 신청을 잊지 마세요!", programName),
	}
}
