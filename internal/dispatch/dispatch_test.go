package dispatch

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/schedule"
)

func ptr[T any](v T) *T { return &v }

type call struct {
	kind Kind
	tgt  Target
}

func setup(t *testing.T) (*Dispatcher, *Registry, *dom.Page, *[]call) {
	t.Helper()
	page, err := dom.NewPage("https://example.com/")
	require.NoError(t, err)
	form := page.AddForm(&dom.Form{ID: "signup", Name: "signup"})
	page.AddElement(form, &dom.Element{Name: "email", ID: "email"})
	page.AddElement(form, &dom.Element{Type: "radio", Name: "plan", Value: "basic", Checked: true})
	page.AddElement(form, &dom.Element{Type: "radio", Name: "plan", Value: "pro"})
	page.AddElement(form, &dom.Element{Tag: "select", Name: "country", Options: []dom.Option{
		{Value: "br", Selected: true}, {Value: "pt"},
	}})

	var calls []call
	reg := NewRegistry()
	for _, k := range []Kind{Focus, Input, Change, Submit, Visibility, ScrollKind, Load} {
		reg.Register(HandlerFunc(k, func(sig Signal, tgt Target) error {
			calls = append(calls, call{sig.Kind, tgt})
			return nil
		}))
	}
	loop := schedule.NewLoop(schedule.NewManual(time.Unix(0, 0)))
	return New(page, reg, loop, nil), reg, page, &calls
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(HandlerFunc(Focus, func(Signal, Target) error { return nil }))
	assert.Panics(t, func() {
		reg.Register(HandlerFunc(Focus, func(Signal, Target) error { return nil }))
	})
	assert.Equal(t, []Kind{Focus}, reg.Kinds())

	_, err := reg.Get(Blur)
	assert.Error(t, err)
}

func TestDispatch_AppliesValueBeforeHandler(t *testing.T) {
	d, _, page, calls := setup(t)
	email, _ := page.Lookup("#email")

	var seen string
	d.reg.handlers[Input] = HandlerFunc(Input, func(_ Signal, tgt Target) error {
		seen = tgt.Element.Value
		return nil
	})

	require.NoError(t, d.Dispatch(Signal{Kind: Input, Target: "#email", Value: ptr("a@b.com")}))
	assert.Equal(t, "a@b.com", seen)
	assert.Equal(t, "a@b.com", email.Value)
	assert.Empty(t, *calls)
}

func TestDispatch_ResolvesTargets(t *testing.T) {
	d, _, page, calls := setup(t)
	form := page.Forms()[0]

	require.NoError(t, d.Dispatch(Signal{Kind: Focus, Target: "email"}))
	require.NoError(t, d.Dispatch(Signal{Kind: Submit, Target: "#signup"}))
	require.NoError(t, d.Dispatch(Signal{Kind: Submit, Target: fmt.Sprintf("@%d", form.Handle)}))

	require.Len(t, *calls, 3)
	assert.Equal(t, "email", (*calls)[0].tgt.Element.Name)
	assert.Same(t, form, (*calls)[0].tgt.Form)
	assert.Nil(t, (*calls)[1].tgt.Element)
	assert.Same(t, form, (*calls)[1].tgt.Form)
	assert.Same(t, form, (*calls)[2].tgt.Form)
}

func TestDispatch_RadioCheckUnchecksGroup(t *testing.T) {
	d, _, page, _ := setup(t)
	var basic, pro *dom.Element
	for _, e := range page.Elements() {
		if e.Name == "plan" && e.Value == "basic" {
			basic = e
		}
		if e.Name == "plan" && e.Value == "pro" {
			pro = e
		}
	}

	require.NoError(t, d.Dispatch(Signal{Kind: Change, Target: fmt.Sprintf("@%d", pro.Handle), Checked: ptr(true)}))

	assert.True(t, pro.Checked)
	assert.False(t, basic.Checked)
}

func TestDispatch_SelectAndPageMutations(t *testing.T) {
	d, _, page, _ := setup(t)
	country, _ := page.Lookup("country")

	require.NoError(t, d.Dispatch(Signal{Kind: Change, Target: "country", Value: ptr("pt")}))
	assert.Equal(t, []string{"pt"}, country.SelectedValues())

	require.NoError(t, d.Dispatch(Signal{Kind: ScrollKind, ScrollTop: ptr(900.0), DocumentHeight: ptr(3000.0), ViewportHeight: ptr(1000.0)}))
	assert.Equal(t, 900.0, page.ScrollTop)
	assert.Equal(t, 3000.0, page.DocumentHeight)
	assert.Equal(t, 1000.0, page.ViewportHeight)

	require.NoError(t, d.Dispatch(Signal{Kind: Visibility, Hidden: ptr(true)}))
	assert.True(t, page.Hidden)

	page.ReadyState = "loading"
	require.NoError(t, d.Dispatch(Signal{Kind: Load}))
	assert.Equal(t, dom.ReadyComplete, page.ReadyState)
}

func TestDispatch_UnknownKindIsNoop(t *testing.T) {
	d, _, page, calls := setup(t)
	email, _ := page.Lookup("#email")

	assert.NoError(t, d.Dispatch(Signal{Kind: Blur, Target: "#email", Value: ptr("x")}))
	assert.Equal(t, "x", email.Value, "the page mutation still happens")
	assert.Empty(t, *calls)
}

func TestDispatch_RecoversHandlerPanic(t *testing.T) {
	d, reg, _, _ := setup(t)
	reg.Register(HandlerFunc(Unload, func(Signal, Target) error { panic("boom") }))

	var err error
	assert.NotPanics(t, func() { err = d.Dispatch(Signal{Kind: Unload}) })
	assert.ErrorContains(t, err, "boom")

	// The loop is still usable afterwards.
	assert.NoError(t, d.Dispatch(Signal{Kind: Focus, Target: "email"}))
}

func TestDispatch_HandlerErrorIsReturned(t *testing.T) {
	d, reg, _, _ := setup(t)
	reg.Register(HandlerFunc(Blur, func(sig Signal, tgt Target) error {
		if tgt.Element == nil {
			return fmt.Errorf("%w: %q", ErrNoTarget, sig.Target)
		}
		return nil
	}))

	err := d.Dispatch(Signal{Kind: Blur, Target: "#missing"})
	assert.True(t, errors.Is(err, ErrNoTarget))
}
