// internal/browser/interface.go
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownEngine is returned when a launch names an engine that is not configured.
var ErrUnknownEngine = errors.New("unknown browser engine")

// ErrNoNewPage is returned when no unclaimed tab appeared before the deadline.
var ErrNoNewPage = errors.New("no new page appeared")

// WaitCondition selects how much of a page load a navigation waits for.
type WaitCondition string

const (
	WaitNone             WaitCondition = "commit"
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitLoad             WaitCondition = "load"
	WaitNetworkIdle      WaitCondition = "networkidle"
)

// Response is the main-document response of a navigation.
// Status is 0 when the navigation produced no HTTP response (file:, about:, data:).
type Response struct {
	Status int
	URL    string
}

// ElementRef addresses the Ordinal-th element (0-based, document order) matching
// Selector under document.body.
type ElementRef struct {
	Selector string
	Ordinal  int
}

// ElementState describes what an ElementRef points at in the live document.
type ElementState struct {
	// Count is the number of elements currently matching the selector under document.body.
	Count  int    `json:"count"`
	Exists bool   `json:"exists"`
	Tag    string `json:"tag"`
	// Text is the element's raw textContent.
	Text string `json:"text"`
}

// ConsoleMessage is one entry of the page's console stream.
type ConsoleMessage struct {
	Type string
	Text string
	Time time.Time
}

// Launcher starts browser engines by configured name.
type Launcher interface {
	Launch(ctx context.Context, engine string) (Browser, error)
	Engines() []string
}

// Browser is one running engine instance.
type Browser interface {
	Engine() string
	// NewPage opens a tab owned by the caller.
	NewPage(ctx context.Context) (Page, error)
	// WaitForNewPage waits for a tab opened by page content (target=_blank, window.open)
	// that has not been claimed yet.
	WaitForNewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single browser tab.
type Page interface {
	Navigate(ctx context.Context, url string, wait WaitCondition) (*Response, error)
	WaitForState(ctx context.Context, wait WaitCondition) error

	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	BodyHTML(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, expression string, res any) error
	// Inspect reports the live element behind el without acting on it.
	Inspect(ctx context.Context, el ElementRef) (ElementState, error)

	Click(ctx context.Context, el ElementRef) error
	Check(ctx context.Context, el ElementRef) error
	Focus(ctx context.Context, el ElementRef) error
	Type(ctx context.Context, el ElementRef, text string) error
	// SelectOption picks the first option whose text contains option and returns its text.
	SelectOption(ctx context.Context, el ElementRef, option string) (string, error)

	Press(ctx context.Context, key string) error
	InsertText(ctx context.Context, text string) error
	// DismissedDialogs returns how many JavaScript dialogs were dismissed since the last call.
	DismissedDialogs() int

	// OnConsole registers a handler for console messages. Handlers run on the event goroutine.
	OnConsole(handler func(ConsoleMessage))
	Close(ctx context.Context) error
}
