package calendar

import "errors"

var ErrNoSchedule = errors.New("event has no start time")
