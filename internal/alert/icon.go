package alert

import "strings"

const (
	IconUp      = "🟢"
	IconDown    = "🔴"
	IconNeutral = "🔹"
	IconClose   = "🔵"
	IconOther   = "⚪"
)

// Placeholders rendered for the missing side of an opened or closed position.
const (
	Opened = "OPENED"
	Closed = "CLOSED"
)

// Icon maps a direction transition to its marker. Comparison is
// case-insensitive; "OPENED" stands for a position with no prior state.
func Icon(before, after string) string {
	b := strings.ToUpper(strings.TrimSpace(before))
	a := strings.ToUpper(strings.TrimSpace(after))
	switch {
	case (b == "SHORT" || b == Opened) && a == "LONG":
		return IconUp
	case (b == "LONG" || b == Opened) && a == "SHORT":
		return IconDown
	case a == "LONG":
		return IconUp
	case a == "SHORT":
		return IconDown
	default:
		return IconNeutral
	}
}

// FillIcon maps a fill or order direction ("Open Long", "Close Short",
// "Long", ...) to its marker, case-insensitively.
func FillIcon(dir string) string {
	switch strings.ToLower(strings.Join(strings.Fields(dir), " ")) {
	case "open long", "long":
		return IconUp
	case "open short", "short":
		return IconDown
	case "close long", "close short":
		return IconClose
	default:
		return IconOther
	}
}
