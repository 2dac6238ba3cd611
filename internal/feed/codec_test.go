package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"feed-handler/internal/core/model"
)

func TestDecodeSnapshot(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"snapshot","as_of_seq":2,"bids":[{"price":"5","qty":2}],"asks":[{"price":"7.50","qty":3}]}`))
	require.NoError(t, err)

	snap, ok := msg.(model.Snapshot)
	require.True(t, ok, "expected Snapshot, got %T", msg)
	require.Equal(t, int64(2), snap.AsOfSeq)
	require.Len(t, snap.Book.Bids, 1)
	require.Len(t, snap.Book.Asks, 1)
	require.True(t, snap.Book.Equal(model.OrderBook{
		Bids: []model.Level{model.NewLevel("5", 2)},
		Asks: []model.Level{model.NewLevel("7.5", 3)},
	}))
}

func TestDecodeEvent(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"event","event":"CHANGE","seq":3,"price":"5","qty":-1,"is_buy":false}`))
	require.NoError(t, err)

	ev, ok := msg.(model.Event)
	require.True(t, ok, "expected Event, got %T", msg)
	require.Equal(t, model.EventChange, ev.Kind)
	require.Equal(t, int64(3), ev.Seq)
	require.Equal(t, model.SideAsk, ev.Side)
	require.True(t, ev.Price.Valid)
	require.Equal(t, "5", ev.Price.Decimal.String())
	require.Equal(t, model.Qty{Value: -1, Valid: true}, ev.Qty)
}

func TestDecodeNumericPrice(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"event","event":"add","seq":1,"price":101.25,"qty":4,"is_buy":true}`))
	require.NoError(t, err)

	ev := msg.(model.Event)
	require.Equal(t, model.EventAdd, ev.Kind)
	require.Equal(t, "101.25", ev.Price.Decimal.String())
	require.Equal(t, model.SideBid, ev.Side)
}

func TestDecodeMissingFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"event","event":"DISCONNECT","seq":4,"price":null,"qty":null}`))
	require.NoError(t, err)

	ev := msg.(model.Event)
	require.Equal(t, model.EventDisconnect, ev.Kind)
	require.False(t, ev.Price.Valid)
	require.False(t, ev.Qty.Valid)
	require.Equal(t, model.SideNone, ev.Side)
}

func TestDecodeUnknownEventName(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"event","event":"TRADE","seq":9}`))
	require.NoError(t, err)
	require.Equal(t, model.EventUnknown, msg.(model.Event).Kind)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"heartbeat"}`))
	require.True(t, errors.Is(err, ErrUnknownType), "got %v", err)

	_, err = Decode([]byte(`{"type":`))
	require.Error(t, err)

	_, err = Decode([]byte(`{"type":"event","event":"ADD","price":"abc"}`))
	require.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	msgs := []model.Message{
		model.Snapshot{
			AsOfSeq: 7,
			Book: model.OrderBook{
				Bids: []model.Level{model.NewLevel("5", 2), model.NewLevel("4.5", 1)},
				Asks: []model.Level{model.NewLevel("7", 3)},
			},
		},
		model.Add(8, true, "5", 2),
		model.Change(9, false, "7", -1),
		model.Delete(10, true, "4.5"),
		model.Disconnect(11),
	}

	for _, msg := range msgs {
		data, err := Encode(msg)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err, "decode %s", data)

		switch want := msg.(type) {
		case model.Snapshot:
			snap := got.(model.Snapshot)
			require.Equal(t, want.AsOfSeq, snap.AsOfSeq)
			require.True(t, want.Book.Equal(snap.Book), "book mismatch: %s", data)
		case model.Event:
			ev := got.(model.Event)
			require.Equal(t, want.Kind, ev.Kind)
			require.Equal(t, want.Seq, ev.Seq)
			require.Equal(t, want.Side, ev.Side)
			require.Equal(t, want.Qty, ev.Qty)
			require.Equal(t, want.Price.Valid, ev.Price.Valid)
			if want.Price.Valid {
				require.True(t, want.Price.Decimal.Equal(ev.Price.Decimal))
			}
		}
	}
}

func TestDecodePriceOutOfRange(t *testing.T) {
	cases := []string{
		`{"type":"event","event":"ADD","seq":1,"price":"1e30000000","qty":1,"is_buy":true}`,
		`{"type":"event","event":"ADD","seq":1,"price":"1e-30000000","qty":1,"is_buy":true}`,
		`{"type":"event","event":"CHANGE","seq":1,"price":"123456789012345678901234567890123456789","qty":1,"is_buy":true}`,
		`{"type":"snapshot","as_of_seq":1,"bids":[{"price":"1e30000000","qty":1}]}`,
		`{"type":"snapshot","as_of_seq":1,"asks":[{"price":"5","qty":1},{"price":"1e19","qty":1}]}`,
	}
	for _, data := range cases {
		_, err := Decode([]byte(data))
		require.ErrorIs(t, err, model.ErrPriceOutOfRange, data)
	}

	// 末尾 0 不计入指数
	msg, err := Decode([]byte(`{"type":"event","event":"ADD","seq":1,"price":"1.50000000000000000000000","qty":1,"is_buy":true}`))
	require.NoError(t, err)
	require.Equal(t, "1.5", msg.(model.Event).Price.Decimal.String())

	_, err = Decode([]byte(`{"type":"event","event":"ADD","seq":1,"price":"1e18","qty":1,"is_buy":true}`))
	require.NoError(t, err)
}
