package tooling

import "time"

func minutesToDuration(minutes int) time.Duration {
	return time.Duration(minutes) * time.Minute
}
