package book

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"feed-handler/internal/core/model"
)

var (
	// ErrLevelNotFound 档位不存在
	// 所有 *LevelNotFoundError 均满足 errors.Is(err, ErrLevelNotFound)
	ErrLevelNotFound = errors.New("price level not found")
	// ErrUnsupportedKind 事件类型无法应用到档位簿
	ErrUnsupportedKind = errors.New("unsupported event kind")
)

// LevelNotFoundError DELETE 或负数 CHANGE 指向了不存在的档位
type LevelNotFoundError struct {
	Side  model.Side
	Price decimal.Decimal
}

func (e *LevelNotFoundError) Error() string {
	return fmt.Sprintf("%s level %s not found", e.Side, e.Price)
}

// Is 使 errors.Is(err, ErrLevelNotFound) 成立
func (e *LevelNotFoundError) Is(target error) bool {
	return target == ErrLevelNotFound
}
