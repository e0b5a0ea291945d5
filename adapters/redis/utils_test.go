package redis

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidvault/auction"
)

func TestDefaultParseToMessage(t *testing.T) {
	t.Run("event", func(t *testing.T) {
		evt := auction.Event{
			Type:       auction.EventBidPlaced,
			AuctionID:  "a1",
			Actor:      "0xbidder",
			Amount:     "1000",
			Attributes: map[string]string{"sequence": "3"},
			Time:       1_700_000_000,
		}
		message, err := DefaultParseToMessage(evt)
		require.NoError(t, err)
		require.Len(t, message, 1)
		assert.IsType(t, "", message["data"])

		got, err := DefaultParseFromMessage[auction.Event](message)
		require.NoError(t, err)
		assert.Equal(t, evt, got)
	})

	t.Run("pointer type", func(t *testing.T) {
		_, err := DefaultParseToMessage(&auction.Event{})
		assert.ErrorIs(t, err, ErrPointerType)
	})
}

func TestDefaultParseFromMessage(t *testing.T) {
	tests := []struct {
		name    string
		message map[string]any
		wantErr string
	}{
		{
			name:    "empty message",
			message: map[string]any{},
		},
		{
			name:    "missing data field",
			message: map[string]any{"other": "x"},
			wantErr: "data field not found",
		},
		{
			name:    "invalid base64",
			message: map[string]any{"data": "%%%"},
			wantErr: "base64 decode error",
		},
		{
			name:    "invalid msgpack",
			message: map[string]any{"data": "/w=="},
			wantErr: "msgpack unmarshal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultParseFromMessage[auction.Event](tt.message)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, auction.Event{}, got)
		})
	}

	t.Run("pointer type", func(t *testing.T) {
		_, err := DefaultParseFromMessage[*auction.Event](map[string]any{"data": ""})
		assert.ErrorIs(t, err, ErrPointerType)
	})
}

func sampleAuction() *auction.Auction {
	return &auction.Auction{
		ID:            "a1",
		Type:          auction.TypeSealedBid,
		Seller:        "0xseller",
		Title:         "Vintage camera",
		StartingPrice: uint256.NewInt(1000),
		ReservePrice:  uint256.NewInt(1500),
		CurrentPrice:  uint256.NewInt(1000),
		HighestBid:    uint256.NewInt(0),
		CreatedAt:     1_700_000_000,
		StartTime:     1_700_000_000,
		EndTime:       1_700_003_600,
		Status:        auction.StatusActive,
		Item:          auction.Item{IsPhysical: true, Name: "camera", Images: []string{"a.png"}},
		SealedBids: map[auction.Address]*auction.SealedBid{
			"0xbidder": {Bidder: "0xbidder", Amount: new(uint256.Int).Lsh(uint256.NewInt(1), 200), SubmittedAt: 1_700_000_100, Sequence: 1},
		},
		Sequence: 1,
		Version:  4,
	}
}

func TestSnapshot(t *testing.T) {
	t.Run("round trip keeps big amounts", func(t *testing.T) {
		a := sampleAuction()
		data, err := EncodeSnapshot(a)
		require.NoError(t, err)

		got, err := DecodeSnapshot(data)
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		assert.Equal(t, a.Type, got.Type)
		assert.Equal(t, a.Status, got.Status)
		assert.Equal(t, a.Version, got.Version)
		assert.Equal(t, a.Item, got.Item)
		assert.Nil(t, got.MinIncrement)
		assert.True(t, a.ReservePrice.Eq(got.ReservePrice))
		require.Contains(t, got.SealedBids, auction.Address("0xbidder"))
		assert.True(t, a.SealedBids["0xbidder"].Amount.Eq(got.SealedBids["0xbidder"].Amount))
	})

	t.Run("nil auction", func(t *testing.T) {
		_, err := EncodeSnapshot(nil)
		assert.Error(t, err)
	})

	t.Run("corrupted data", func(t *testing.T) {
		_, err := DecodeSnapshot("not base64!")
		assert.ErrorContains(t, err, "base64 decode error")
	})
}
