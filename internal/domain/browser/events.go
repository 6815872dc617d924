package browser

// TargetKind names a target lifecycle notification.
type TargetKind string

const (
	TargetCreated   TargetKind = "created"
	TargetDestroyed TargetKind = "destroyed"
	TargetChanged   TargetKind = "changed"
)

// TargetTypePage is the CDP target type for a tab.
const TargetTypePage = "page"

// TargetEvent is a browser-level target notification.
type TargetEvent struct {
	Kind     TargetKind
	TargetID string
	Type     string
	URL      string
	Title    string
}

// IsPage reports whether the event concerns a page target.
func (e TargetEvent) IsPage() bool {
	return e.Type == TargetTypePage
}

// PageEventKind names a page-level notification.
type PageEventKind string

const (
	PageNavigated     PageEventKind = "navigated"
	PageLoaded        PageEventKind = "load"
	PageConsole       PageEventKind = "console"
	PageException     PageEventKind = "exception"
	PageRequest       PageEventKind = "request"
	PageResponse      PageEventKind = "response"
	PageRequestFailed PageEventKind = "request_failed"
)

// PageEvent is a page-level notification. Only the fields relevant to Kind
// are set.
type PageEvent struct {
	Kind      PageEventKind
	TargetID  string
	URL       string
	Method    string
	Level     string
	Text      string
	Status    int
	RequestID string
}
