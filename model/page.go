package model

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// Page is an exclusive cursor plus limit. Cursor 0 means start from the
// newest item.
type Page struct {
	Cursor int64
	Limit  int
}

// Normalize clamps the limit into [1, MaxPageSize].
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Cursor < 0 {
		p.Cursor = 0
	}
	return p
}

// NextCursor returns the cursor for the following page given the cursor of
// the last returned item, or 0 when the page was not full.
func (p Page) NextCursor(lastCursor int64, returned int) int64 {
	if returned < p.Limit {
		return 0
	}
	return lastCursor
}
