// internal/browser/keys.go
package browser

import (
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// keyTable maps the key names scripts use to the chromedp key sequences.
var keyTable = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"Space":      " ",
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

var modifierTable = map[string]input.Modifier{
	"Shift":   input.ModifierShift,
	"Control": input.ModifierCtrl,
	"Alt":     input.ModifierAlt,
	"Meta":    input.ModifierMeta,
}

// ParseKey splits a key chord such as "Shift+Tab" into its chromedp sequence and modifiers.
func ParseKey(name string) (string, []input.Modifier, bool) {
	parts := strings.Split(name, "+")
	key, ok := keyTable[parts[len(parts)-1]]
	if !ok {
		return "", nil, false
	}
	var mods []input.Modifier
	for _, p := range parts[:len(parts)-1] {
		m, ok := modifierTable[p]
		if !ok {
			return "", nil, false
		}
		mods = append(mods, m)
	}
	return key, mods, true
}

// IsKnownKey reports whether name is a key or chord Press accepts.
func IsKnownKey(name string) bool {
	_, _, ok := ParseKey(name)
	return ok
}

// IsNavigationKey reports whether name moves focus or selection, as used by focus traversal.
func IsNavigationKey(name string) bool {
	switch name {
	case "Tab", "Shift+Tab", "ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight":
		return true
	}
	return false
}
