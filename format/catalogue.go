package format

// LabelInfo is the presentation data of one interior class.
type LabelInfo struct {
	Label       string
	Emoji       string
	Description string
}

// Catalogue lists the interior classes in display order.
var Catalogue = []LabelInfo{
	{Label: "A0", Emoji: "🧱", Description: "Unfinished"},
	{Label: "A1", Emoji: "◻️", Description: "White box (ready for finishing)"},
	{Label: "B0", Emoji: "🏚️", Description: "Economy (dated renovation)"},
	{Label: "B1", Emoji: "🎨", Description: "Economy+ (budget new-build renovation)"},
	{Label: "C0", Emoji: "☑️", Description: "Standard (solid mid-range)"},
	{Label: "C1", Emoji: "🏠", Description: "Standard+ (good regular renovation)"},
	{Label: "D0", Emoji: "✨", Description: "Euro-style renovation"},
	{Label: "D1", Emoji: "💎", Description: "Luxe (designer)"},
}

var unknownLabel = LabelInfo{Emoji: "🏠", Description: "Unknown"}

var catalogueIndex = func() map[string]int {
	m := make(map[string]int, len(Catalogue))
	for i, info := range Catalogue {
		m[info.Label] = i
	}
	return m
}()

// Lookup returns the catalogue entry for label, or a generic entry.
func Lookup(label string) LabelInfo {
	if i, ok := catalogueIndex[label]; ok {
		return Catalogue[i]
	}
	info := unknownLabel
	info.Label = label
	return info
}
