package modbus

import "time"

// TimeoutScheduler is the one-shot timer collaborator the registry needs
// for transaction deadlines (§6, §9's "explicit injected collaborator"
// design note — no ambient global timer wheel).
type TimeoutScheduler interface {
	// Schedule arranges for fn to run at or after deadline, returning a
	// cancel function that prevents fn from firing if called beforehand.
	// Calling cancel after fn has already fired is a harmless no-op.
	Schedule(deadline time.Time, fn func()) (cancel func())
}

// systemScheduler is the default TimeoutScheduler, backed by time.AfterFunc.
type systemScheduler struct{}

// NewSystemScheduler returns a TimeoutScheduler backed by the runtime timer
// wheel — the natural default for any real transport.
func NewSystemScheduler() TimeoutScheduler {
	return systemScheduler{}
}

func (systemScheduler) Schedule(deadline time.Time, fn func()) func() {
	timer := time.AfterFunc(time.Until(deadline), fn)
	return func() { timer.Stop() }
}
