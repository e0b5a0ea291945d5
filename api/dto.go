package api

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/samber/lo"

	"bidvault/auction"
	"bidvault/models"
)

// 金額一律以十進位字串傳遞，避免 JSON 數字失去精度

type itemRequest struct {
	IsPhysical      bool     `json:"isPhysical"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Condition       string   `json:"condition"`
	Dimensions      string   `json:"dimensions"`
	Weight          uint64   `json:"weight"`
	ShippingAddress string   `json:"shippingAddress"`
	Images          []string `json:"images"`
}

type dutchRequest struct {
	DecrementAmount   string `json:"decrementAmount"`
	DecrementInterval int64  `json:"decrementInterval"`
}

type fixedRequest struct {
	Quantity    uint64 `json:"quantity"`
	MaxPerBuyer uint64 `json:"maxPerBuyer"`
}

type createAuctionRequest struct {
	Type          string        `json:"type" binding:"required"`
	Title         string        `json:"title" binding:"required"`
	Description   string        `json:"description"`
	StartingPrice string        `json:"startingPrice" binding:"required"`
	ReservePrice  string        `json:"reservePrice"`
	MinIncrement  string        `json:"minIncrement"`
	StartTime     int64         `json:"startTime"`
	Duration      int64         `json:"duration" binding:"required"`
	Item          itemRequest   `json:"item"`
	Dutch         *dutchRequest `json:"dutch"`
	Fixed         *fixedRequest `json:"fixed"`
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type purchaseRequest struct {
	Quantity uint64 `json:"quantity" binding:"required"`
	Payment  string `json:"payment" binding:"required"`
}

type shipmentRequest struct {
	TrackingNumber string `json:"trackingNumber" binding:"required"`
}

type disputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type resolutionRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

// parseAmount 空字串回傳 nil
func parseAmount(field, s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a non-negative decimal integer", field)
	}
	return v, nil
}

func parseRequiredAmount(field, s string) (*uint256.Int, error) {
	v, err := parseAmount(field, s)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	return v, nil
}

func (r createAuctionRequest) toParams(seller auction.Address, sanitize func(string) string) (auction.CreateParams, error) {
	auctionType, err := auction.ParseType(r.Type)
	if err != nil {
		return auction.CreateParams{}, fmt.Errorf("unknown auction type %q", r.Type)
	}
	startingPrice, err := parseRequiredAmount("startingPrice", r.StartingPrice)
	if err != nil {
		return auction.CreateParams{}, err
	}
	reservePrice, err := parseAmount("reservePrice", r.ReservePrice)
	if err != nil {
		return auction.CreateParams{}, err
	}
	minIncrement, err := parseAmount("minIncrement", r.MinIncrement)
	if err != nil {
		return auction.CreateParams{}, err
	}

	params := auction.CreateParams{
		Type:            auctionType,
		Seller:          seller,
		Title:           r.Title,
		Description:     sanitize(r.Description),
		StartingPrice:   startingPrice,
		ReservePrice:    reservePrice,
		MinIncrement:    minIncrement,
		StartTime:       r.StartTime,
		DurationSeconds: r.Duration,
		Item: auction.Item{
			IsPhysical:      r.Item.IsPhysical,
			Name:            r.Item.Name,
			Description:     sanitize(r.Item.Description),
			Condition:       r.Item.Condition,
			Dimensions:      r.Item.Dimensions,
			Weight:          r.Item.Weight,
			ShippingAddress: r.Item.ShippingAddress,
			Images:          r.Item.Images,
		},
	}
	if r.Dutch != nil {
		decrement, err := parseRequiredAmount("dutch.decrementAmount", r.Dutch.DecrementAmount)
		if err != nil {
			return auction.CreateParams{}, err
		}
		params.Dutch = &auction.DutchSchedule{
			DecrementAmount:   decrement,
			DecrementInterval: r.Dutch.DecrementInterval,
		}
	}
	if r.Fixed != nil {
		params.Fixed = &auction.FixedSwapParams{
			Quantity:    r.Fixed.Quantity,
			MaxPerBuyer: r.Fixed.MaxPerBuyer,
		}
	}
	return params, nil
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

type dutchResponse struct {
	DecrementAmount   string `json:"decrementAmount"`
	DecrementInterval int64  `json:"decrementInterval"`
}

type fixedResponse struct {
	FixedPrice        string `json:"fixedPrice"`
	TotalQuantity     uint64 `json:"totalQuantity"`
	RemainingQuantity uint64 `json:"remainingQuantity"`
	MaxPerBuyer       uint64 `json:"maxPerBuyer,omitempty"`
}

type sealedBidResponse struct {
	Bidder      string `json:"bidder"`
	Amount      string `json:"amount"`
	SubmittedAt int64  `json:"submittedAt"`
}

type purchaseResponse struct {
	Buyer    string `json:"buyer"`
	Quantity uint64 `json:"quantity"`
	Amount   string `json:"amount"`
	At       int64  `json:"at"`
}

type escrowResponse struct {
	Seller          string `json:"seller"`
	Buyer           string `json:"buyer"`
	Amount          string `json:"amount"`
	Fee             string `json:"escrowFee"`
	State           string `json:"state"`
	IsActive        bool   `json:"isActive"`
	TrackingNumber  string `json:"trackingNumber,omitempty"`
	ItemReceived    bool   `json:"itemReceived"`
	PaymentReleased bool   `json:"paymentReleased"`
	DisputeReason   string `json:"disputeReason,omitempty"`
	DisputedBy      string `json:"disputedBy,omitempty"`
	Resolution      string `json:"resolution"`
	FundedAt        int64  `json:"fundedAt"`
	ShippedAt       int64  `json:"shippedAt,omitempty"`
	ReceivedAt      int64  `json:"receivedAt,omitempty"`
	ReleasedAt      int64  `json:"releasedAt,omitempty"`
}

type auctionResponse struct {
	ID            string              `json:"id"`
	Type          string              `json:"type"`
	Seller        string              `json:"seller"`
	Title         string              `json:"title"`
	Description   string              `json:"description,omitempty"`
	StartingPrice string              `json:"startingPrice"`
	ReservePrice  string              `json:"reservePrice,omitempty"`
	MinIncrement  string              `json:"minIncrement,omitempty"`
	CurrentPrice  string              `json:"currentPrice"`
	HighestBidder string              `json:"highestBidder,omitempty"`
	HighestBid    string              `json:"highestBid"`
	CreatedAt     int64               `json:"createdAt"`
	StartTime     int64               `json:"startTime"`
	EndTime       int64               `json:"endTime"`
	Status        string              `json:"status"`
	Outcome       string              `json:"outcome"`
	Item          auction.Item        `json:"item"`
	Dutch         *dutchResponse      `json:"dutch,omitempty"`
	Fixed         *fixedResponse      `json:"fixed,omitempty"`
	SealedBids    []sealedBidResponse `json:"sealedBids,omitempty"`
	Purchases     []purchaseResponse  `json:"purchases,omitempty"`
	Escrow        *escrowResponse     `json:"escrow,omitempty"`
	Version       uint64              `json:"version"`
}

func newAuctionResponse(a *auction.Auction) auctionResponse {
	resp := auctionResponse{
		ID:            a.ID,
		Type:          a.Type.String(),
		Seller:        a.Seller.String(),
		Title:         a.Title,
		Description:   a.Description,
		StartingPrice: formatAmount(a.StartingPrice),
		ReservePrice:  formatAmount(a.ReservePrice),
		MinIncrement:  formatAmount(a.MinIncrement),
		CurrentPrice:  formatAmount(a.CurrentPrice),
		HighestBidder: a.HighestBidder.String(),
		HighestBid:    formatAmount(a.HighestBid),
		CreatedAt:     a.CreatedAt,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        a.Status.String(),
		Outcome:       a.Outcome.String(),
		Item:          a.Item,
		Version:       a.Version,
	}
	if a.Dutch != nil {
		resp.Dutch = &dutchResponse{
			DecrementAmount:   formatAmount(a.Dutch.DecrementAmount),
			DecrementInterval: a.Dutch.DecrementInterval,
		}
	}
	if a.Fixed != nil {
		resp.Fixed = &fixedResponse{
			FixedPrice:        formatAmount(a.Fixed.FixedPrice),
			TotalQuantity:     a.Fixed.TotalQuantity,
			RemainingQuantity: a.Fixed.RemainingQuantity,
			MaxPerBuyer:       a.Fixed.MaxPerBuyer,
		}
	}
	if len(a.SealedBids) > 0 {
		resp.SealedBids = lo.Map(a.SealedBidders(), func(bidder auction.Address, _ int) sealedBidResponse {
			return newSealedBidResponse(a.SealedBids[bidder])
		})
	}
	resp.Purchases = lo.Map(a.Purchases, func(p *auction.Purchase, _ int) purchaseResponse {
		return purchaseResponse{
			Buyer:    p.Buyer.String(),
			Quantity: p.Quantity,
			Amount:   formatAmount(p.Amount),
			At:       p.At,
		}
	})
	if e := a.Escrow; e != nil {
		resp.Escrow = &escrowResponse{
			Seller:          e.Seller.String(),
			Buyer:           e.Buyer.String(),
			Amount:          formatAmount(e.Amount),
			Fee:             formatAmount(e.Fee),
			State:           e.State.String(),
			IsActive:        e.IsActive,
			TrackingNumber:  e.TrackingNumber,
			ItemReceived:    e.ItemReceived,
			PaymentReleased: e.PaymentReleased,
			DisputeReason:   e.DisputeReason,
			DisputedBy:      e.DisputedBy.String(),
			Resolution:      e.Resolution.String(),
			FundedAt:        e.FundedAt,
			ShippedAt:       e.ShippedAt,
			ReceivedAt:      e.ReceivedAt,
			ReleasedAt:      e.ReleasedAt,
		}
	}
	return resp
}

func newSealedBidResponse(b *auction.SealedBid) sealedBidResponse {
	return sealedBidResponse{
		Bidder:      b.Bidder.String(),
		Amount:      formatAmount(b.Amount),
		SubmittedAt: b.SubmittedAt,
	}
}

type priceResponse struct {
	AuctionID    string `json:"auctionId"`
	CurrentPrice string `json:"currentPrice"`
	At           int64  `json:"at"`
}

type transactionResponse struct {
	Key        string `json:"key"`
	Kind       string `json:"kind"`
	Party      string `json:"party"`
	Amount     string `json:"amount"`
	OccurredAt int64  `json:"occurredAt"`
}

func newTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		Key:        t.IdempotencyKey,
		Kind:       t.Kind,
		Party:      t.Party,
		Amount:     t.Amount,
		OccurredAt: t.OccurredAt,
	}
}

type imageResponse struct {
	URL string `json:"url"`
}
