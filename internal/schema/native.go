package schema

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Names of the native collections.
const (
	AtomicCollection  = "Atomic"
	FoundryCollection = "Foundry"
)

// NativeID returns the deterministic ID of a native record. Seeding the same
// label always yields the same ID.
func NativeID(label string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(label)).String()
}

// IsNative reports whether name is one of the built-in collections.
func IsNative(name string) bool {
	_, ok := nativeCatalog[name]
	return ok
}

// NativeCollections returns the sorted names of the native collections.
func NativeCollections() []string {
	return slices.Sorted(maps.Keys(nativeCatalog))
}

// NativeRecords returns fresh copies of the records of a native collection,
// with their IDs assigned.
func NativeRecords(collection string) []*Record {
	src := nativeCatalog[collection]
	out := make([]*Record, 0, len(src))
	for i := range src {
		r := src[i].Clone()
		r.ID = NativeID(r.Label)
		out = append(out, r)
	}
	return out
}

var nativeCatalog = map[string][]Record{
	AtomicCollection: {
		{
			Label: "string",
			Description: "Native type. Denotes a short text. " +
				"During production, this is looked up as a localization key first. " +
				"If that yields no result, the content is used 'as is'.",
		},
		{
			Label:       "text",
			Description: "Native type. Denotes a longer text that is styled with markdown.",
		},
		{
			Label:       "int",
			Description: "Native type. A whole number (0, 1, 2, 3, -15, ...).",
		},
		{
			Label:       "decimal",
			Description: "Native type. A real number (0, 1, 2.5, -3.14159265, 15.234e5, ...).",
		},
		{
			Label:       "bool",
			Description: "Native type. A binary value, representing true/false, on/off, yes/no...",
		},
	},
	FoundryCollection: {
		{
			Label:       "Document",
			Description: "Base type for Foundry [documents](https://foundryvtt.com/api/classes/foundry.abstract.Document.html).",
			Fields: []Field{
				{Key: "name", Label: "Name", Ref: "Atomic.string", IsRequired: true, Default: "New Document"},
				{Key: "_id", Label: "id", Ref: "Atomic.string", IsRequired: true},
			},
		},
		{
			Label:       "JournalEntry",
			Description: "Basically a book. See [Journals](https://foundryvtt.com/article/journal/) on the [Foundry Knowledgebase](https://foundryvtt.com/kb/).",
			Extends:     "Foundry.Document",
			Fields: []Field{
				{Key: "pages", Label: "Pages", Ref: "Foundry.JournalEntryPage", IsArray: true},
			},
		},
		{
			Label:       "JournalEntryPage",
			Description: "A page in a [Journal](https://foundryvtt.com/article/journal/).",
			Extends:     "Foundry.Document",
			Fields: []Field{
				{Key: "content", Label: "Page Content", Ref: "Atomic.text"},
			},
		},
		{
			Label:       "RollableTable",
			Description: "See [Rollable Tables](https://foundryvtt.com/article/roll-tables/) on the [Foundry Knowledgebase](https://foundryvtt.com/kb/).",
			Extends:     "Foundry.Document",
		},
	},
}
