package consent

import (
	"context"
	"errors"
	"testing"

	"storefront-checkout/internal/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePages struct {
	fail bool
}

func (f *fakePages) GetPage(_ context.Context, slug string) (*dto.PageResponse, error) {
	if f.fail {
		return nil, errors.New("backend down")
	}
	return &dto.PageResponse{Slug: slug, Title: slug, Body: "lorem ipsum"}, nil
}

var (
	halfway = ScrollPosition{Offset: 100, Viewport: 400, Content: 2000}
	bottom  = ScrollPosition{Offset: 1600, Viewport: 400, Content: 2000}
)

func TestGate_FullTransition(t *testing.T) {
	g := NewGate(&fakePages{})
	ctx := context.Background()

	assert.Equal(t, Unseen, g.State(Terms))

	page, err := g.Open(ctx, Terms)
	require.NoError(t, err)
	assert.Equal(t, "terms-and-conditions", page.Slug)
	assert.Equal(t, ScrollPending, g.State(Terms))

	s, err := g.ReportScroll(Terms, halfway)
	require.NoError(t, err)
	assert.Equal(t, ScrollPending, s)
	assert.False(t, g.CanAccept(Terms))

	s, err = g.ReportScroll(Terms, bottom)
	require.NoError(t, err)
	assert.Equal(t, ScrollComplete, s)
	assert.True(t, g.CanAccept(Terms))

	require.NoError(t, g.Accept(Terms))
	assert.Equal(t, Accepted, g.State(Terms))
	assert.Equal(t, Record{Accepted: true, ScrollReachedEnd: true}, g.Record(Terms))
}

func TestGate_AcceptBeforeScrollRejected(t *testing.T) {
	g := NewGate(&fakePages{})

	assert.ErrorIs(t, g.Accept(Terms), ErrScrollIncomplete)

	_, err := g.Open(context.Background(), Terms)
	require.NoError(t, err)
	assert.ErrorIs(t, g.Accept(Terms), ErrScrollIncomplete)
	assert.Equal(t, Record{}, g.Record(Terms))
}

func TestGate_ScrollBeforeOpenIgnored(t *testing.T) {
	g := NewGate(&fakePages{})

	s, err := g.ReportScroll(Privacy, bottom)
	require.NoError(t, err)
	assert.Equal(t, Unseen, s)
}

func TestGate_PerDocument(t *testing.T) {
	g := NewGate(&fakePages{})
	ctx := context.Background()

	_, err := g.Open(ctx, Terms)
	require.NoError(t, err)
	_, err = g.ReportScroll(Terms, bottom)
	require.NoError(t, err)
	require.NoError(t, g.Accept(Terms))

	assert.False(t, g.AllAccepted())
	assert.Equal(t, dto.Consents{Terms: true}, g.Flags())
	assert.ErrorIs(t, g.Accept(Privacy), ErrScrollIncomplete)

	_, err = g.Open(ctx, Privacy)
	require.NoError(t, err)
	_, err = g.ReportScroll(Privacy, ScrollPosition{Offset: 0, Viewport: 800, Content: 600})
	require.NoError(t, err)
	require.NoError(t, g.Accept(Privacy))
	assert.True(t, g.AllAccepted())
}

func TestGate_AcceptedIsTerminal(t *testing.T) {
	g := NewGate(&fakePages{})
	ctx := context.Background()

	_, err := g.Open(ctx, Terms)
	require.NoError(t, err)
	_, err = g.ReportScroll(Terms, bottom)
	require.NoError(t, err)
	require.NoError(t, g.Accept(Terms))

	_, err = g.Open(ctx, Terms)
	require.NoError(t, err)
	s, err := g.ReportScroll(Terms, halfway)
	require.NoError(t, err)
	assert.Equal(t, Accepted, s)
	assert.NoError(t, g.Accept(Terms))

	g.Reset()
	assert.Equal(t, Unseen, g.State(Terms))
}

func TestGate_OpenFailureKeepsUnseen(t *testing.T) {
	g := NewGate(&fakePages{fail: true})

	_, err := g.Open(context.Background(), Terms)
	assert.Error(t, err)
	assert.Equal(t, Unseen, g.State(Terms))
}

func TestGate_UnknownDocument(t *testing.T) {
	g := NewGate(&fakePages{})

	_, err := g.Open(context.Background(), Document("cookies"))
	assert.ErrorIs(t, err, ErrUnknownDocument)
	assert.ErrorIs(t, g.Accept(Document("cookies")), ErrUnknownDocument)
	_, err = g.ReportScroll(Document("cookies"), bottom)
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "scroll_complete", ScrollComplete.String())
	assert.Equal(t, "state(9)", State(9).String())
}
