package quiz

import "time"

// Scheduler arms the one-shot reveal timer that advances a chat's quiz after
// the answer window closes. Exactly one timer is live per chat: the engine
// arms the next one only from inside the previous one's callback.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// TimerScheduler is the production Scheduler backed by time.AfterFunc.
// Timers live only for the process lifetime; an interrupted run is resumed by
// the administrator, never by timer recovery.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
