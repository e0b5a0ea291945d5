package postgres

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/samber/lo"

	"bidvault/auction"
	"bidvault/models"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

// parseAmount 空字串代表未設定
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func toModel(a *auction.Auction) *models.Auction {
	m := &models.Auction{
		ID:            a.ID,
		Type:          a.Type.String(),
		Seller:        string(a.Seller),
		Title:         a.Title,
		Description:   a.Description,
		StartingPrice: formatAmount(a.StartingPrice),
		ReservePrice:  formatAmount(a.ReservePrice),
		MinIncrement:  formatAmount(a.MinIncrement),
		CurrentPrice:  formatAmount(a.CurrentPrice),
		HighestBidder: string(a.HighestBidder),
		HighestBid:    formatAmount(a.HighestBid),
		CreatedAt:     a.CreatedAt,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        a.Status.String(),
		Outcome:       a.Outcome.String(),
		Sequence:      a.Sequence,
		Version:       a.Version,
		Item:          a.Item,
		Dutch:         a.Dutch,
		Fixed:         a.Fixed,
	}
	m.SealedBids = lo.Map(a.SealedBidders(), func(bidder auction.Address, _ int) models.SealedBid {
		bid := a.SealedBids[bidder]
		return models.SealedBid{
			AuctionID:   a.ID,
			Bidder:      string(bid.Bidder),
			Amount:      formatAmount(bid.Amount),
			SubmittedAt: bid.SubmittedAt,
			Sequence:    bid.Sequence,
		}
	})
	m.Purchases = lo.Map(a.Purchases, func(p *auction.Purchase, _ int) models.Purchase {
		return models.Purchase{
			AuctionID: a.ID,
			Buyer:     string(p.Buyer),
			Quantity:  p.Quantity,
			Amount:    formatAmount(p.Amount),
			At:        p.At,
			Sequence:  p.Sequence,
		}
	})
	if a.Escrow != nil {
		m.Escrow = escrowToModel(a.Escrow)
	}
	return m
}

func escrowToModel(e *auction.Escrow) *models.Escrow {
	return &models.Escrow{
		AuctionID:       e.AuctionID,
		Seller:          string(e.Seller),
		Buyer:           string(e.Buyer),
		Amount:          formatAmount(e.Amount),
		Fee:             formatAmount(e.Fee),
		FeeBps:          e.FeeBps,
		State:           e.State.String(),
		IsActive:        e.IsActive,
		TrackingNumber:  e.TrackingNumber,
		ItemReceived:    e.ItemReceived,
		PaymentReleased: e.PaymentReleased,
		DisputeReason:   e.DisputeReason,
		DisputedBy:      string(e.DisputedBy),
		Resolution:      e.Resolution.String(),
		FundedAt:        e.FundedAt,
		ShippedAt:       e.ShippedAt,
		ReceivedAt:      e.ReceivedAt,
		ReleasedAt:      e.ReleasedAt,
	}
}

func fromModel(m *models.Auction) (*auction.Auction, error) {
	const op = "postgres.fromModel"
	var err error
	a := &auction.Auction{
		ID:            m.ID,
		Seller:        auction.Address(m.Seller),
		Title:         m.Title,
		Description:   m.Description,
		HighestBidder: auction.Address(m.HighestBidder),
		CreatedAt:     m.CreatedAt,
		StartTime:     m.StartTime,
		EndTime:       m.EndTime,
		Sequence:      m.Sequence,
		Version:       m.Version,
		Item:          m.Item,
		Dutch:         m.Dutch,
		Fixed:         m.Fixed,
		SealedBids:    make(map[auction.Address]*auction.SealedBid, len(m.SealedBids)),
	}
	if a.Type, err = auction.ParseType(m.Type); err != nil {
		return nil, err
	}
	if a.Status, err = auction.ParseStatus(m.Status); err != nil {
		return nil, err
	}
	if a.Outcome, err = auction.ParseOutcome(m.Outcome); err != nil {
		return nil, err
	}

	amounts := []struct {
		dst **uint256.Int
		src string
	}{
		{&a.StartingPrice, m.StartingPrice},
		{&a.ReservePrice, m.ReservePrice},
		{&a.MinIncrement, m.MinIncrement},
		{&a.CurrentPrice, m.CurrentPrice},
		{&a.HighestBid, m.HighestBid},
	}
	for _, amount := range amounts {
		if *amount.dst, err = parseAmount(amount.src); err != nil {
			return nil, fmt.Errorf("[%s] auction %s, err=%w", op, m.ID, err)
		}
	}

	for _, bid := range m.SealedBids {
		amount, err := parseAmount(bid.Amount)
		if err != nil {
			return nil, fmt.Errorf("[%s] sealed bid of %s, err=%w", op, bid.Bidder, err)
		}
		bidder := auction.Address(bid.Bidder)
		a.SealedBids[bidder] = &auction.SealedBid{
			Bidder:      bidder,
			Amount:      amount,
			SubmittedAt: bid.SubmittedAt,
			Sequence:    bid.Sequence,
		}
	}

	purchases := append([]models.Purchase(nil), m.Purchases...)
	sort.Slice(purchases, func(i, j int) bool { return purchases[i].Sequence < purchases[j].Sequence })
	for _, p := range purchases {
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("[%s] purchase of %s, err=%w", op, p.Buyer, err)
		}
		a.Purchases = append(a.Purchases, &auction.Purchase{
			Buyer:    auction.Address(p.Buyer),
			Quantity: p.Quantity,
			Amount:   amount,
			At:       p.At,
			Sequence: p.Sequence,
		})
	}

	if m.Escrow != nil {
		if a.Escrow, err = escrowFromModel(m.Escrow); err != nil {
			return nil, fmt.Errorf("[%s] escrow of %s, err=%w", op, m.ID, err)
		}
	}
	return a, nil
}

func escrowFromModel(m *models.Escrow) (*auction.Escrow, error) {
	e := &auction.Escrow{
		AuctionID:       m.AuctionID,
		Seller:          auction.Address(m.Seller),
		Buyer:           auction.Address(m.Buyer),
		FeeBps:          m.FeeBps,
		IsActive:        m.IsActive,
		TrackingNumber:  m.TrackingNumber,
		ItemReceived:    m.ItemReceived,
		PaymentReleased: m.PaymentReleased,
		DisputeReason:   m.DisputeReason,
		DisputedBy:      auction.Address(m.DisputedBy),
		FundedAt:        m.FundedAt,
		ShippedAt:       m.ShippedAt,
		ReceivedAt:      m.ReceivedAt,
		ReleasedAt:      m.ReleasedAt,
	}
	var err error
	if e.State, err = auction.ParseEscrowState(m.State); err != nil {
		return nil, err
	}
	if e.Resolution, err = auction.ParseResolution(m.Resolution); err != nil {
		return nil, err
	}
	if e.Amount, err = parseAmount(m.Amount); err != nil {
		return nil, err
	}
	if e.Fee, err = parseAmount(m.Fee); err != nil {
		return nil, err
	}
	return e, nil
}
