package nats

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidvault/auction"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	messages []published
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{subject: subject, data: data})
	return nil
}

func TestNewEmitter(t *testing.T) {
	_, err := NewEmitter(nil, "bidvault")
	assert.Error(t, err)
}

func TestEmitter_Subject(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "with prefix", prefix: "bidvault", want: "bidvault.auction.bid_placed"},
		{name: "trailing dot", prefix: "bidvault.", want: "bidvault.auction.bid_placed"},
		{name: "no prefix", prefix: "", want: "auction.bid_placed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEmitter(&fakePublisher{}, tt.prefix)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Subject(auction.Event{Type: auction.EventBidPlaced}))
		})
	}
}

func TestEmitter_Emit(t *testing.T) {
	pub := &fakePublisher{}
	e, err := NewEmitter(pub, "bidvault")
	require.NoError(t, err)

	evt := auction.Event{
		Type:       auction.EventItemShipped,
		AuctionID:  "a1",
		Actor:      "0xseller",
		Attributes: map[string]string{"trackingNumber": "TRACK-1"},
		Time:       1_700_000_000,
	}
	require.NoError(t, e.Emit(evt))
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "bidvault.escrow.item_shipped", pub.messages[0].subject)

	got, err := DecodeEvent(pub.messages[0].data)
	require.NoError(t, err)
	assert.Equal(t, evt, got)

	pub.err = errors.New("nats: connection closed")
	assert.ErrorContains(t, e.Emit(evt), "connection closed")

	_, err = DecodeEvent([]byte{0xc1})
	assert.Error(t, err)
}
