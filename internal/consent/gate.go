// Package consent tracks acknowledgment of the legal documents that gate order submission.
// A document can only be accepted after its viewer reported being scrolled to the end.
package consent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"
)

type Document string

const (
	Terms   Document = "terms-and-conditions"
	Privacy Document = "privacy-policy"
)

// Documents lists every document checkout requires, in display order.
var Documents = []Document{Terms, Privacy}

type State int

const (
	Unseen State = iota
	ScrollPending
	ScrollComplete
	Accepted
)

func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case ScrollPending:
		return "scroll_pending"
	case ScrollComplete:
		return "scroll_complete"
	case Accepted:
		return "accepted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrScrollIncomplete = errors.New("document must be scrolled to the end before accepting")
	ErrUnknownDocument  = errors.New("unknown consent document")
)

// Record is the per-document view exposed to callers.
type Record struct {
	Accepted         bool
	ScrollReachedEnd bool
}

// ScrollPosition is what the document viewer reports, in any consistent unit.
type ScrollPosition struct {
	Offset   float64
	Viewport float64
	Content  float64
}

func (p ScrollPosition) AtEnd() bool {
	return p.Offset+p.Viewport >= p.Content
}

type PageSource interface {
	GetPage(ctx context.Context, slug string) (*dto.PageResponse, error)
}

// Gate is safe for concurrent use.
type Gate struct {
	pages PageSource

	mu     sync.Mutex
	states map[Document]State
}

func NewGate(pages PageSource) *Gate {
	g := &Gate{pages: pages}
	g.Reset()
	return g
}

// Reset starts a new checkout session with every document unseen.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states = make(map[Document]State, len(Documents))
	for _, d := range Documents {
		g.states[d] = Unseen
	}
}

// Open fetches the document for the viewer and marks it as under review. Reopening a
// document never moves it backwards.
func (g *Gate) Open(ctx context.Context, doc Document) (*model.Page, error) {
	if !known(doc) {
		return nil, ErrUnknownDocument
	}

	page, err := g.pages.GetPage(ctx, string(doc))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", doc, err)
	}

	g.mu.Lock()
	if g.states[doc] == Unseen {
		g.states[doc] = ScrollPending
	}
	g.mu.Unlock()

	return &model.Page{
		Slug:  page.Slug,
		Title: page.Title,
		Body:  page.Body,
	}, nil
}

// ReportScroll records a viewer scroll position and returns the resulting state.
func (g *Gate) ReportScroll(doc Document, pos ScrollPosition) (State, error) {
	if !known(doc) {
		return Unseen, ErrUnknownDocument
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.states[doc] == ScrollPending && pos.AtEnd() {
		g.states[doc] = ScrollComplete
	}
	return g.states[doc], nil
}

// CanAccept backs the enabled state of the accept control.
func (g *Gate) CanAccept(doc Document) bool {
	return g.State(doc) == ScrollComplete
}

func (g *Gate) Accept(doc Document) error {
	if !known(doc) {
		return ErrUnknownDocument
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.states[doc] {
	case Accepted:
		return nil
	case ScrollComplete:
		g.states[doc] = Accepted
		return nil
	default:
		return fmt.Errorf("%s: %w", doc, ErrScrollIncomplete)
	}
}

func (g *Gate) State(doc Document) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[doc]
}

func (g *Gate) Record(doc Document) Record {
	s := g.State(doc)
	return Record{
		Accepted:         s == Accepted,
		ScrollReachedEnd: s >= ScrollComplete,
	}
}

func (g *Gate) AllAccepted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range Documents {
		if g.states[d] != Accepted {
			return false
		}
	}
	return true
}

// Flags is the consent part of the checkout payload.
func (g *Gate) Flags() dto.Consents {
	return dto.Consents{
		Terms:   g.State(Terms) == Accepted,
		Privacy: g.State(Privacy) == Accepted,
	}
}

func known(doc Document) bool {
	for _, d := range Documents {
		if d == doc {
			return true
		}
	}
	return false
}
