// Package book 档位簿测试
package book

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"feed-handler/internal/core/model"
)

func px(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBook_SetLevelOverwrites(t *testing.T) {
	b := New()
	b.SetLevel(model.SideBid, px("100.5"), 3)
	b.SetLevel(model.SideBid, px("100.50"), 7)

	if n := b.Len(model.SideBid); n != 1 {
		t.Fatalf("Len(bid)=%d, want 1", n)
	}
	lvl, ok := b.Level(model.SideBid, px("100.5"))
	if !ok || lvl.Qty != 7 {
		t.Fatalf("level=%+v ok=%v, want qty 7", lvl, ok)
	}
	if n := b.Len(model.SideAsk); n != 0 {
		t.Fatalf("Len(ask)=%d, want 0", n)
	}
}

func TestBook_RemoveLevel(t *testing.T) {
	b := New()
	b.SetLevel(model.SideAsk, px("5"), 3)
	b.SetLevel(model.SideAsk, px("6"), 1)

	if err := b.RemoveLevel(model.SideAsk, px("5")); err != nil {
		t.Fatalf("RemoveLevel: %v", err)
	}
	if _, ok := b.Level(model.SideAsk, px("5")); ok {
		t.Fatalf("5 仍然存在")
	}

	err := b.RemoveLevel(model.SideAsk, px("5"))
	if !errors.Is(err, ErrLevelNotFound) {
		t.Fatalf("err=%v, want ErrLevelNotFound", err)
	}
	var lnf *LevelNotFoundError
	if !errors.As(err, &lnf) || lnf.Side != model.SideAsk || !lnf.Price.Equal(px("5")) {
		t.Fatalf("err=%#v, want LevelNotFoundError{ask 5}", err)
	}
	if _, ok := b.Level(model.SideAsk, px("6")); !ok {
		t.Fatalf("失败的删除不应影响其他档位")
	}
}

func TestBook_AdjustLevel(t *testing.T) {
	b := New()
	b.SetLevel(model.SideBid, px("10"), 4)

	if err := b.AdjustLevel(model.SideBid, px("10"), -6); err != nil {
		t.Fatalf("AdjustLevel: %v", err)
	}
	lvl, ok := b.Level(model.SideBid, px("10"))
	if !ok || lvl.Qty != -2 {
		t.Fatalf("level=%+v ok=%v, want qty -2 (不自动删除)", lvl, ok)
	}

	if err := b.AdjustLevel(model.SideAsk, px("10"), -1); !errors.Is(err, ErrLevelNotFound) {
		t.Fatalf("err=%v, want ErrLevelNotFound", err)
	}
}

func TestBook_ReplaceCopies(t *testing.T) {
	ob := model.OrderBook{
		Bids: []model.Level{model.NewLevel("1", 2)},
		Asks: []model.Level{model.NewLevel("5", 3)},
	}
	b := New()
	b.SetLevel(model.SideBid, px("9"), 9)
	b.Replace(ob)

	ob.Bids[0].Qty = 100
	ob.Asks = append(ob.Asks, model.NewLevel("6", 1))

	want := model.OrderBook{
		Bids: []model.Level{model.NewLevel("1", 2)},
		Asks: []model.Level{model.NewLevel("5", 3)},
	}
	if got := b.View(); !got.Equal(want) {
		t.Fatalf("View=%+v, want %+v", got, want)
	}
}

func TestBook_ViewSorted(t *testing.T) {
	b := New()
	for _, p := range []string{"2", "3", "1"} {
		b.SetLevel(model.SideBid, px(p), 1)
		b.SetLevel(model.SideAsk, px(p), 1)
	}

	v := b.View()
	for i, want := range []string{"3", "2", "1"} {
		if !v.Bids[i].Price.Equal(px(want)) {
			t.Fatalf("Bids[%d]=%s, want %s", i, v.Bids[i].Price, want)
		}
	}
	for i, want := range []string{"1", "2", "3"} {
		if !v.Asks[i].Price.Equal(px(want)) {
			t.Fatalf("Asks[%d]=%s, want %s", i, v.Asks[i].Price, want)
		}
	}
}

func TestBook_Clear(t *testing.T) {
	b := FromOrderBook(model.OrderBook{
		Bids: []model.Level{model.NewLevel("1", 2)},
		Asks: []model.Level{model.NewLevel("5", 3)},
	})
	b.Clear()
	if b.Len(model.SideBid) != 0 || b.Len(model.SideAsk) != 0 {
		t.Fatalf("Clear 后仍有档位: %+v", b.View())
	}
}
