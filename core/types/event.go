package types

// Event is the flattened, string-keyed form of a farm or vault event as it
// is logged, recorded in history and served over HTTP.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute stored under key. Empty values count as absent.
func (e *Event) Attr(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	v, ok := e.Attributes[key]
	return v, ok && v != ""
}
