package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceKey_EqualValuesShareKey(t *testing.T) {
	pairs := [][2]string{{"1.50", "1.5"}, {"100", "1e2"}, {"0.000", "0"}, {"-2.10", "-2.1"}}
	for _, p := range pairs {
		a, b := decimal.RequireFromString(p[0]), decimal.RequireFromString(p[1])
		if PriceKey(a) != PriceKey(b) {
			t.Fatalf("PriceKey(%s)=%s, PriceKey(%s)=%s", p[0], PriceKey(a), p[1], PriceKey(b))
		}
	}
	if PriceKey(decimal.RequireFromString("1.5")) == PriceKey(decimal.RequireFromString("15")) {
		t.Fatalf("1.5 与 15 不应得到相同的键")
	}
}

func TestPriceKey_HugeExponent(t *testing.T) {
	start := time.Now()
	hi, lo := decimal.New(1, 30000000), decimal.New(1, -30000000)
	if PriceKey(hi) == PriceKey(lo) {
		t.Fatalf("键不应相同")
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("PriceKey 耗时 %v", d)
	}
}

func TestCheckPrice(t *testing.T) {
	ok := []decimal.Decimal{
		decimal.RequireFromString("0"),
		decimal.RequireFromString("101.25"),
		decimal.RequireFromString("1.50000000000000000000000"),
		decimal.New(1, MaxPriceExponent),
		decimal.New(1, MinPriceExponent),
	}
	for _, d := range ok {
		if err := CheckPrice(d); err != nil {
			t.Fatalf("CheckPrice(%s): %v", d, err)
		}
	}

	bad := []decimal.Decimal{
		decimal.New(1, 30000000),
		decimal.New(1, -30000000),
		decimal.New(1, MaxPriceExponent+1),
		decimal.New(1, MinPriceExponent-1),
		decimal.RequireFromString("123456789012345678901234567890123456789"),
	}
	for _, d := range bad {
		if err := CheckPrice(d); !errors.Is(err, ErrPriceOutOfRange) {
			t.Fatalf("CheckPrice(exp=%d) err=%v, want ErrPriceOutOfRange", d.Exponent(), err)
		}
	}

	if err := CheckLevels([]Level{NewLevel("5", 1), {Price: decimal.New(1, 19), Qty: 1}}); !errors.Is(err, ErrPriceOutOfRange) {
		t.Fatalf("CheckLevels err=%v", err)
	}
}
