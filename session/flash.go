package session

import "context"

type FlashLevel string

const (
	FlashSuccess FlashLevel = "success"
	FlashInfo    FlashLevel = "info"
	FlashWarning FlashLevel = "warning"
	FlashError   FlashLevel = "error"
)

const (
	flashLevelKey   = "flash.level"
	flashMessageKey = "flash.message"
)

// Flash is a one-shot notification shown on the next rendered page.
type Flash struct {
	Level   FlashLevel
	Message string
}

// Flasher keeps at most one pending notification in a scope. A newer flash
// replaces an older one.
type Flasher struct {
	scope Storage
}

func NewFlasher(scope Storage) *Flasher {
	return &Flasher{scope: scope}
}

func (f *Flasher) Flash(ctx context.Context, level FlashLevel, message string) {
	f.scope.Put(ctx, flashLevelKey, string(level))
	f.scope.Put(ctx, flashMessageKey, message)
}

// Pop returns the pending notification and removes it.
func (f *Flasher) Pop(ctx context.Context) (Flash, bool) {
	msg, ok := f.scope.Get(ctx, flashMessageKey)
	if !ok {
		return Flash{}, false
	}
	level, _ := f.scope.Get(ctx, flashLevelKey)
	f.scope.Remove(ctx, flashMessageKey)
	f.scope.Remove(ctx, flashLevelKey)
	if level == "" {
		level = string(FlashInfo)
	}
	return Flash{Level: FlashLevel(level), Message: msg}, true
}
