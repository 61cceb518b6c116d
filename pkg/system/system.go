package system

import (
	"time"
)

var StartTime = time.Now()

func InitStartTime() {
	StartTime = time.Now()
}

func Uptime() int64 {
	uptime := time.Since(StartTime)
	return int64(uptime.Seconds())
}
