package page

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/xkilldash9x/uiharness/internal/driver"
)

// Pick resolves which of several elements matching a locator an interaction
// targets. Choose reports ok=false when no candidate qualifies yet; the
// caller keeps polling in that case.
type Pick interface {
	Choose(ctx context.Context, els []driver.Element) (index int, ok bool, err error)
	String() string
}

// PickFromConfig maps the interaction.disambiguation setting onto a Pick.
func PickFromConfig(name string) (Pick, error) {
	switch name {
	case "", "first":
		return First(), nil
	case "random":
		return Random(nil), nil
	default:
		return nil, fmt.Errorf("unknown disambiguation %q, want first or random", name)
	}
}

type firstPick struct{}

// First targets the first match in document order.
func First() Pick { return firstPick{} }

func (firstPick) Choose(_ context.Context, els []driver.Element) (int, bool, error) {
	return 0, len(els) > 0, nil
}

func (firstPick) String() string { return "first" }

type indexPick int

// At targets the match at index i. It never consults a random source.
func At(i int) Pick { return indexPick(i) }

func (p indexPick) Choose(_ context.Context, els []driver.Element) (int, bool, error) {
	i := int(p)
	return i, i >= 0 && i < len(els), nil
}

func (p indexPick) String() string { return fmt.Sprintf("index %d", int(p)) }

type randomPick struct {
	rng *rand.Rand
}

// Random targets a uniformly chosen match. A nil src uses the process wide
// generator. A single match is always index 0 without drawing.
func Random(src rand.Source) Pick {
	if src == nil {
		return randomPick{}
	}
	return randomPick{rng: rand.New(src)}
}

func (p randomPick) Choose(_ context.Context, els []driver.Element) (int, bool, error) {
	switch n := len(els); n {
	case 0:
		return 0, false, nil
	case 1:
		return 0, true, nil
	default:
		if p.rng != nil {
			return p.rng.IntN(n), true, nil
		}
		return rand.IntN(n), true, nil
	}
}

func (randomPick) String() string { return "random" }

type attributePick struct {
	name, value string
}

// WithAttribute targets the first match whose attribute name equals value.
func WithAttribute(name, value string) Pick { return attributePick{name: name, value: value} }

func (p attributePick) Choose(ctx context.Context, els []driver.Element) (int, bool, error) {
	for i, el := range els {
		v, err := el.Attribute(ctx, p.name)
		if err != nil {
			return 0, false, err
		}
		if v == p.value {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func (p attributePick) String() string { return fmt.Sprintf("[%s=%q]", p.name, p.value) }

type textPick string

// WithText targets the first match whose visible text contains substr.
func WithText(substr string) Pick { return textPick(substr) }

func (p textPick) Choose(ctx context.Context, els []driver.Element) (int, bool, error) {
	for i, el := range els {
		text, err := el.Text(ctx)
		if err != nil {
			return 0, false, err
		}
		if strings.Contains(text, string(p)) {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func (p textPick) String() string { return fmt.Sprintf("text %q", string(p)) }
