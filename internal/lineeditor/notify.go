package lineeditor

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notification is a user-visible message raised by an editor operation.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// Recorder buffers notifications until drained.
type Recorder struct {
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.items = append(r.items, n)
}

// Drain returns buffered notifications and empties the buffer.
func (r *Recorder) Drain() []Notification {
	out := r.items
	r.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

// Fanout delivers each notification to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(n Notification) {
	for _, notifier := range f {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}

type discard struct{}

func (discard) Notify(Notification) {}
