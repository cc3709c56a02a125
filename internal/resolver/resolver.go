// internal/resolver/resolver.go
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pagecheck/internal/browser"
)

// Page is the slice of browser.Page the resolver reads.
type Page interface {
	BodyText(ctx context.Context) (string, error)
	BodyHTML(ctx context.Context) (string, error)
	Inspect(ctx context.Context, el browser.ElementRef) (browser.ElementState, error)
}

// Kind classifies a resolution.
type Kind string

const (
	Found        Kind = "found"
	Ambiguous    Kind = "ambiguous"
	Insufficient Kind = "insufficientCandidates"
	NotFound     Kind = "notFound"
	// Stale means the live element at the chosen ordinal no longer matches the snapshot.
	Stale Kind = "staleSnapshot"
)

// Resolution is the outcome of Resolve. Exactly the fields of its Kind are meaningful.
type Resolution struct {
	Kind Kind
	// Element and Text describe the chosen element when Found.
	Element browser.ElementRef
	Text    string
	// Candidates holds the effective texts of the matches when Ambiguous.
	Candidates []string
	// Count is the number of matches when Insufficient.
	Count  int
	Reason string
}

// Describe renders a non-Found resolution as the diagnostic stored on an act.
func (r Resolution) Describe() string {
	switch r.Kind {
	case Found:
		return fmt.Sprintf("found %q", r.Text)
	case Ambiguous:
		return fmt.Sprintf("ambiguous: %d candidates match (%s)", len(r.Candidates), strings.Join(quoteAll(r.Candidates), ", "))
	case Insufficient:
		return fmt.Sprintf("insufficient candidates: %d match", r.Count)
	case Stale:
		return "stale snapshot: " + r.Reason
	default:
		return "not found: " + r.Reason
	}
}

// Record renders the resolution as a generic value for an act's result.
func (r Resolution) Record() map[string]any {
	rec := map[string]any{"status": string(r.Kind)}
	switch r.Kind {
	case Found:
		rec["text"] = r.Text
	case Ambiguous:
		cands := make([]any, len(r.Candidates))
		for i, c := range r.Candidates {
			cands[i] = c
		}
		rec["candidates"] = cands
	case Insufficient:
		rec["count"] = float64(r.Count)
	case NotFound, Stale:
		rec["reason"] = r.Reason
	}
	return rec
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// Debloat collapses whitespace and case-folds text so comparisons ignore both.
func Debloat(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// Resolver locates script targets by selector, effective text and occurrence.
type Resolver struct {
	textWait time.Duration
	poll     time.Duration
	logger   *zap.Logger
}

// New creates a resolver. textWait bounds how long Resolve waits for matchText to render;
// the page text is always read at least once.
func New(textWait, poll time.Duration, logger *zap.Logger) *Resolver {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	if textWait < poll {
		textWait = poll
	}
	return &Resolver{textWait: textWait, poll: poll, logger: logger.Named("resolver")}
}

// Resolve finds the target. hasIndex false means the caller expects a unique match.
// The error is reserved for failures reading the page; every lookup outcome is a Resolution.
func (r *Resolver) Resolve(ctx context.Context, page Page, selector, matchText string, index int, hasIndex bool) (Resolution, error) {
	want := Debloat(matchText)

	if want != "" {
		present, err := r.waitForText(ctx, page, want)
		if err != nil {
			return Resolution{}, err
		}
		if !present {
			return Resolution{Kind: NotFound, Reason: fmt.Sprintf("text %q is not on the page", matchText)}, nil
		}
	}

	html, err := page.BodyHTML(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to read page body: %w", err)
	}
	candidates, err := Candidates(html, selector)
	if err != nil {
		return Resolution{}, err
	}
	if len(candidates) == 0 {
		return Resolution{Kind: NotFound, Reason: fmt.Sprintf("no element matches %q", selector)}, nil
	}

	var matches []Candidate
	for _, c := range candidates {
		if strings.Contains(c.Text, want) {
			matches = append(matches, c)
		}
	}
	r.logger.Debug("Resolved candidates.",
		zap.String("selector", selector),
		zap.String("match", matchText),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)))

	pick := func(c Candidate) (Resolution, error) {
		return r.verify(ctx, page, selector, len(candidates), c)
	}

	if hasIndex {
		if index < 0 || index >= len(matches) {
			return Resolution{Kind: Insufficient, Count: len(matches)}, nil
		}
		return pick(matches[index])
	}
	switch len(matches) {
	case 0:
		return Resolution{Kind: Insufficient, Count: 0}, nil
	case 1:
		return pick(matches[0])
	}
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return Resolution{Kind: Ambiguous, Candidates: texts}, nil
}

// verify checks the live element at c's ordinal against the snapshot it was chosen from.
// The snapshot is a re-parse of serialized HTML, which can place elements differently than
// the live DOM does (foster-parented table content, nested forms or links).
func (r *Resolver) verify(ctx context.Context, page Page, selector string, total int, c Candidate) (Resolution, error) {
	el := browser.ElementRef{Selector: selector, Ordinal: c.Ordinal}
	live, err := page.Inspect(ctx, el)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to inspect element %d of %q: %w", c.Ordinal, selector, err)
	}

	var reason string
	switch {
	case !live.Exists:
		reason = fmt.Sprintf("element %d of %q is gone", c.Ordinal, selector)
	case live.Count != total:
		reason = fmt.Sprintf("page has %d elements matching %q, snapshot had %d", live.Count, selector, total)
	case !strings.EqualFold(live.Tag, c.Tag):
		reason = fmt.Sprintf("element %d of %q is <%s>, expected <%s>", c.Ordinal, selector, strings.ToLower(live.Tag), c.Tag)
	case Debloat(live.Text) != c.Content:
		reason = fmt.Sprintf("element %d of %q reads %q, expected %q", c.Ordinal, selector, Debloat(live.Text), c.Content)
	default:
		return Resolution{Kind: Found, Element: el, Text: c.Text}, nil
	}
	r.logger.Warn("Live element differs from snapshot.", zap.String("reason", reason))
	return Resolution{Kind: Stale, Reason: reason}, nil
}

// waitForText polls the body text until it contains want or textWait elapses.
func (r *Resolver) waitForText(ctx context.Context, page Page, want string) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.textWait)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(r.poll), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
		text, err := page.BodyText(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to read page text: %w", err)
		}
		if strings.Contains(Debloat(text), want) {
			return true, nil
		}
	}
}

// Candidate is one element matching a selector.
type Candidate struct {
	Ordinal int
	// Text is the debloated effective text used for matching.
	Text string
	// Tag and Content (debloated textContent) identify the element in the live page.
	Tag     string
	Content string
}

// Candidates parses a body snapshot and computes the effective text of every element
// matching selector under body, in document order. Template content is skipped since the
// live document's querySelectorAll never reaches it.
func Candidates(bodyHTML, selector string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page body: %w", err)
	}
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	doc.Find("body").FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("template").Length() > 0 {
			return
		}
		out = append(out, Candidate{
			Ordinal: len(out),
			Text:    Debloat(effectiveText(doc, s)),
			Tag:     goquery.NodeName(s),
			Content: Debloat(s.Text()),
		})
	})
	return out, nil
}
