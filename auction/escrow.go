package auction

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

type EscrowState uint8

const (
	EscrowFunded EscrowState = iota + 1
	EscrowShipped
	EscrowReceived
	EscrowDisputed
	EscrowResolved
)

var escrowStateNames = map[EscrowState]string{
	EscrowFunded:   "funded",
	EscrowShipped:  "shipped",
	EscrowReceived: "received",
	EscrowDisputed: "disputed",
	EscrowResolved: "resolved",
}

func (s EscrowState) String() string {
	if name, ok := escrowStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("EscrowState(%d)", uint8(s))
}

func ParseEscrowState(s string) (EscrowState, error) {
	for st, name := range escrowStateNames {
		if name == s {
			return st, nil
		}
	}
	return 0, NewError("ParseEscrowState", KindInvalidParameters, "unknown escrow state %q", s)
}

func (s EscrowState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *EscrowState) UnmarshalText(text []byte) error {
	v, err := ParseEscrowState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Resolution 仲裁結果
type Resolution uint8

const (
	ResolutionNone Resolution = iota
	ResolutionRelease
	ResolutionRefund
)

var resolutionNames = map[Resolution]string{
	ResolutionNone:    "none",
	ResolutionRelease: "release",
	ResolutionRefund:  "refund",
}

func (r Resolution) String() string {
	if name, ok := resolutionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Resolution(%d)", uint8(r))
}

func ParseResolution(s string) (Resolution, error) {
	for r, name := range resolutionNames {
		if strings.EqualFold(name, s) {
			return r, nil
		}
	}
	return 0, NewError("ParseResolution", KindInvalidParameters, "unknown resolution %q", s)
}

func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Resolution) UnmarshalText(text []byte) error {
	v, err := ParseResolution(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Escrow 實體商品的託管紀錄，只保存拍賣 id
type Escrow struct {
	AuctionID       string       `json:"auctionId"`
	Seller          Address      `json:"seller"`
	Buyer           Address      `json:"buyer"`
	Amount          *uint256.Int `json:"amount"`
	Fee             *uint256.Int `json:"escrowFee"`
	FeeBps          uint64       `json:"feeBps"`
	State           EscrowState  `json:"state"`
	IsActive        bool         `json:"isActive"`
	TrackingNumber  string       `json:"trackingNumber,omitempty"`
	ItemReceived    bool         `json:"itemReceived"`
	PaymentReleased bool         `json:"paymentReleased"`
	DisputeReason   string       `json:"disputeReason,omitempty"`
	DisputedBy      Address      `json:"disputedBy,omitempty"`
	Resolution      Resolution   `json:"resolution"`
	FundedAt        int64        `json:"fundedAt"`
	ShippedAt       int64        `json:"shippedAt,omitempty"`
	ReceivedAt      int64        `json:"receivedAt,omitempty"`
	ReleasedAt      int64        `json:"releasedAt,omitempty"`
}

func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	c := *e
	c.Amount = cloneInt(e.Amount)
	c.Fee = cloneInt(e.Fee)
	return &c
}

// EscrowFee = amount * bps / 10000，無條件捨去
func EscrowFee(amount *uint256.Int, bps uint64) *uint256.Int {
	if amount == nil || bps == 0 {
		return new(uint256.Int)
	}
	fee, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(bps), uint256.NewInt(BpsDenominator))
	return fee
}

func newEscrow(a *Auction, buyer Address, amount *uint256.Int, feeBps uint64, now int64) *Escrow {
	return &Escrow{
		AuctionID: a.ID,
		Seller:    a.Seller,
		Buyer:     buyer,
		Amount:    amount.Clone(),
		Fee:       EscrowFee(amount, feeBps),
		FeeBps:    feeBps,
		State:     EscrowFunded,
		IsActive:  true,
		FundedAt:  now,
	}
}

// requireEscrow 數位商品沒有託管
func requireEscrow(op string, a *Auction) (*Escrow, error) {
	if !a.Item.IsPhysical {
		return nil, NewError(op, KindNotPhysicalItem, "auction %s sells a digital item", a.ID)
	}
	if a.Escrow == nil {
		return nil, NewError(op, KindInvalidState, "auction %s has no escrow yet", a.ID)
	}
	return a.Escrow, nil
}

func confirmShipped(a *Auction, p *plan, caller Address, trackingNumber string, now int64) error {
	const op = "ConfirmShipped"
	if caller.IsZero() || caller != a.Seller {
		return NewError(op, KindUnauthorized, "only the seller can confirm shipment")
	}
	e, err := requireEscrow(op, a)
	if err != nil {
		return err
	}
	if e.TrackingNumber != "" {
		return NewError(op, KindAlreadyShipped, "auction %s shipped with tracking %s", a.ID, e.TrackingNumber)
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return NewError(op, KindInvalidParameters, "tracking number is required")
	}
	if e.State != EscrowFunded {
		return NewError(op, KindInvalidState, "escrow for auction %s is %s", a.ID, e.State)
	}

	e.TrackingNumber = trackingNumber
	e.State = EscrowShipped
	e.ShippedAt = now
	p.emit(EventItemShipped, caller, nil, "trackingNumber", trackingNumber)
	return nil
}

// releasePayment 付款給賣家並收取手續費，paymentReleased 只能設定一次
func releasePayment(a *Auction, p *plan, e *Escrow, feeRecipient Address, now int64) {
	proceeds := new(uint256.Int).Sub(e.Amount, e.Fee)
	p.payout(ledgerKey(a.ID, "escrow", "release", string(e.Seller)), e.Seller, proceeds)
	p.payout(ledgerKey(a.ID, "escrow", "fee", string(feeRecipient)), feeRecipient, e.Fee)
	e.PaymentReleased = true
	e.IsActive = false
	e.ReleasedAt = now
	p.emit(EventPaymentReleased, e.Seller, proceeds, "fee", e.Fee.Dec())
}

func confirmReceived(a *Auction, p *plan, caller Address, feeRecipient Address, now int64) error {
	const op = "ConfirmReceived"
	if caller.IsZero() || caller != a.HighestBidder {
		return NewError(op, KindUnauthorized, "only the winning bidder can confirm receipt")
	}
	if !a.Item.IsPhysical {
		return NewError(op, KindNotPhysicalItem, "auction %s sells a digital item", a.ID)
	}
	e := a.Escrow
	if e == nil {
		return NewError(op, KindNotShipped, "auction %s has not been shipped", a.ID)
	}
	if e.PaymentReleased {
		return NewError(op, KindAlreadySettled, "payment for auction %s was already released", a.ID)
	}
	if e.State != EscrowShipped {
		if e.State == EscrowDisputed {
			return NewError(op, KindInvalidState, "escrow for auction %s is under dispute", a.ID)
		}
		return NewError(op, KindNotShipped, "auction %s has not been shipped", a.ID)
	}

	e.ItemReceived = true
	e.State = EscrowReceived
	e.ReceivedAt = now
	p.emit(EventItemReceived, caller, nil)
	releasePayment(a, p, e, feeRecipient, now)
	return a.transition(op, StatusSettled)
}

func raiseDispute(a *Auction, p *plan, caller Address, reason string, now int64) error {
	const op = "RaiseDispute"
	if caller.IsZero() || (caller != a.Seller && caller != a.HighestBidder) {
		return NewError(op, KindUnauthorized, "only the seller or the winning bidder can raise a dispute")
	}
	e, err := requireEscrow(op, a)
	if err != nil {
		return err
	}
	if e.PaymentReleased {
		return NewError(op, KindAlreadySettled, "payment for auction %s was already released", a.ID)
	}
	if !e.IsActive || e.ItemReceived {
		return NewError(op, KindInvalidState, "escrow for auction %s is closed", a.ID)
	}
	if e.State == EscrowDisputed {
		return NewError(op, KindInvalidState, "auction %s is already under dispute", a.ID)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewError(op, KindInvalidParameters, "dispute reason is required")
	}
	if err := a.transition(op, StatusDisputed); err != nil {
		return err
	}

	e.State = EscrowDisputed
	e.DisputeReason = reason
	e.DisputedBy = caller
	p.dispute = &disputeSubmission{reason: reason}
	p.emit(EventDisputeRaised, caller, nil, "reason", reason)
	return nil
}

func resolveDispute(a *Auction, p *plan, caller Address, resolution Resolution, policy Policy, now int64) error {
	const op = "ResolveDispute"
	if caller.IsZero() || caller != policy.Arbiter {
		return NewError(op, KindUnauthorized, "only the arbiter can resolve disputes")
	}
	e, err := requireEscrow(op, a)
	if err != nil {
		return err
	}
	if e.PaymentReleased {
		return NewError(op, KindAlreadySettled, "payment for auction %s was already released", a.ID)
	}
	if e.State != EscrowDisputed {
		return NewError(op, KindInvalidState, "auction %s is not under dispute", a.ID)
	}

	switch resolution {
	case ResolutionRelease:
		releasePayment(a, p, e, policy.FeeRecipient, now)
	case ResolutionRefund:
		p.refund(ledgerKey(a.ID, "escrow", "refund", string(e.Buyer)), e.Buyer, e.Amount)
		e.PaymentReleased = true
		e.IsActive = false
		e.ReleasedAt = now
	default:
		return NewError(op, KindInvalidParameters, "resolution must be release or refund")
	}

	e.State = EscrowResolved
	e.Resolution = resolution
	p.emit(EventDisputeResolved, caller, e.Amount, "resolution", resolution.String())
	return a.transition(op, StatusSettled)
}
