package model

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// 价格的取值范围
// 指数按去掉系数末尾 0 之后计算，1.500 与 1.5 的指数相同
const (
	// MaxPriceDigits 系数最大位数
	MaxPriceDigits = 38
	// MaxPriceExponent 最大指数
	MaxPriceExponent = 18
	// MinPriceExponent 最小指数
	MinPriceExponent = -18
)

// ErrPriceOutOfRange 价格的位数或指数超出范围
var ErrPriceOutOfRange = errors.New("price out of range")

var bigTen = big.NewInt(10)

// normalizePrice 去掉系数末尾的 0，返回 (系数, 指数)
// 耗时只与系数位数有关，与指数大小无关
func normalizePrice(d decimal.Decimal) (*big.Int, int64) {
	coef := d.Coefficient()
	exp := int64(d.Exponent())
	if coef.Sign() == 0 {
		return coef, 0
	}
	q, r := new(big.Int), new(big.Int)
	for {
		q.QuoRem(coef, bigTen, r)
		if r.Sign() != 0 {
			return coef, exp
		}
		coef, q = q, coef
		exp++
	}
}

// CheckPrice 检查价格是否在可处理的范围内
func CheckPrice(d decimal.Decimal) error {
	if d.NumDigits() > MaxPriceDigits {
		return ErrPriceOutOfRange
	}
	if _, exp := normalizePrice(d); exp > MaxPriceExponent || exp < MinPriceExponent {
		return ErrPriceOutOfRange
	}
	return nil
}

// PriceKey 价格的规范键，数值相等的价格得到相同的键（1.50 与 1.5 相同）
func PriceKey(d decimal.Decimal) string {
	coef, exp := normalizePrice(d)
	if exp == 0 {
		return coef.String()
	}
	return coef.String() + "e" + strconv.FormatInt(exp, 10)
}

// CheckLevels 检查一组档位的价格
func CheckLevels(levels []Level) error {
	for _, l := range levels {
		if err := CheckPrice(l.Price); err != nil {
			return err
		}
	}
	return nil
}
