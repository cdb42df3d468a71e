package schema

import "fmt"

// Filter selects records. The set of filters is closed: MatchByID,
// MatchByLabel, MatchEither and MatchAll.
type Filter interface {
	fmt.Stringer
	isFilter()
}

// MatchByID matches the record with this ID.
type MatchByID string

// MatchByLabel matches records with this label.
type MatchByLabel string

// MatchEither matches records whose ID equals ID or whose label equals Label.
type MatchEither struct {
	ID    string
	Label string
}

// MatchAll matches every record.
type MatchAll struct{}

func (MatchByID) isFilter()    {}
func (MatchByLabel) isFilter() {}
func (MatchEither) isFilter()  {}
func (MatchAll) isFilter()     {}

func (f MatchByID) String() string    { return fmt.Sprintf("id=%q", string(f)) }
func (f MatchByLabel) String() string { return fmt.Sprintf("label=%q", string(f)) }
func (f MatchEither) String() string  { return fmt.Sprintf("id=%q|label=%q", f.ID, f.Label) }
func (MatchAll) String() string       { return "*" }

// Matches reports whether r is selected by f. A nil filter matches nothing.
func Matches(f Filter, r *Record) bool {
	switch f := f.(type) {
	case MatchByID:
		return r.ID == string(f)
	case MatchByLabel:
		return r.Label == string(f)
	case MatchEither:
		return r.ID == f.ID || r.Label == f.Label
	case MatchAll:
		return true
	default:
		return false
	}
}

// MatchIDOrLabel matches records whose ID or label equals s.
func MatchIDOrLabel(s string) MatchEither {
	return MatchEither{ID: s, Label: s}
}
