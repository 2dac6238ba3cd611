// Package feed 实现行情源适配：JSON 消息编解码，以及文件、WebSocket、Kafka 三种行情源。
//
// 每条消息是一个 JSON 对象:
//
//	{"type":"snapshot","as_of_seq":2,"bids":[{"price":"5","qty":2}],"asks":[{"price":"7","qty":3}]}
//	{"type":"event","event":"CHANGE","seq":3,"price":"5","qty":5,"is_buy":true}
//
// 事件的 price/qty/is_buy 可省略或为 null。价格超出 model.CheckPrice 范围的消息按解析错误处理。
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"feed-handler/internal/core/model"
)

const (
	typeSnapshot = "snapshot"
	typeEvent    = "event"
)

// ErrUnknownType 消息 type 字段无法识别
var ErrUnknownType = errors.New("unknown message type")

// wireMessage 消息的 JSON 形式
type wireMessage struct {
	// Type 消息类型: snapshot, event
	Type string `json:"type"`

	// Event 事件类型: DISCONNECT, ADD, CHANGE, DELETE
	Event string `json:"event,omitempty"`
	// Seq 事件序列号
	Seq int64 `json:"seq,omitempty"`
	// Price 价格，字符串或数字
	Price *decimal.Decimal `json:"price,omitempty"`
	// Qty 数量
	Qty *int64 `json:"qty,omitempty"`
	// IsBuy 是否买方向
	IsBuy *bool `json:"is_buy,omitempty"`

	// AsOfSeq 快照序列号
	AsOfSeq int64 `json:"as_of_seq,omitempty"`
	// Bids 快照买盘
	Bids []model.Level `json:"bids,omitempty"`
	// Asks 快照卖盘
	Asks []model.Level `json:"asks,omitempty"`
}

// Decode 解析一条 JSON 消息
// 未识别的事件名解码为 EventUnknown，由处理器按格式错误上报
func Decode(data []byte) (model.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("解析消息失败: %w", err)
	}

	switch w.Type {
	case typeSnapshot:
		if err := model.CheckLevels(w.Bids); err != nil {
			return nil, fmt.Errorf("快照买盘: %w", err)
		}
		if err := model.CheckLevels(w.Asks); err != nil {
			return nil, fmt.Errorf("快照卖盘: %w", err)
		}
		return model.Snapshot{
			Book:    model.OrderBook{Bids: w.Bids, Asks: w.Asks},
			AsOfSeq: w.AsOfSeq,
		}, nil

	case typeEvent:
		ev := model.Event{
			Kind: model.ParseEventKind(strings.ToUpper(w.Event)),
			Seq:  w.Seq,
		}
		if w.Price != nil {
			if err := model.CheckPrice(*w.Price); err != nil {
				return nil, fmt.Errorf("事件 seq=%d: %w", w.Seq, err)
			}
			ev.Price = decimal.NewNullDecimal(*w.Price)
		}
		if w.Qty != nil {
			ev.Qty = model.Qty{Value: *w.Qty, Valid: true}
		}
		if w.IsBuy != nil {
			ev.Side = model.SideFromIsBuy(*w.IsBuy)
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
}

// Encode 将消息编码为 JSON
func Encode(msg model.Message) ([]byte, error) {
	var w wireMessage
	switch m := msg.(type) {
	case model.Snapshot:
		w = wireMessage{
			Type:    typeSnapshot,
			AsOfSeq: m.AsOfSeq,
			Bids:    m.Book.Bids,
			Asks:    m.Book.Asks,
		}
	case model.Event:
		w = wireMessage{
			Type:  typeEvent,
			Event: m.Kind.String(),
			Seq:   m.Seq,
		}
		if m.Price.Valid {
			price := m.Price.Decimal
			w.Price = &price
		}
		if m.Qty.Valid {
			qty := m.Qty.Value
			w.Qty = &qty
		}
		if m.Side != model.SideNone {
			isBuy := m.Side == model.SideBid
			w.IsBuy = &isBuy
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	return json.Marshal(w)
}
