package domain

import "time"

// NotificationAttempt records a single provider call made for a notification.
type NotificationAttempt struct {
	ID             string
	NotificationID string
	AttemptNumber  int
	Provider       string
	StatusCode     *int
	ResponseBody   *string
	Error          *string
	CreatedAt      time.Time
}
