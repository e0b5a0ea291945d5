package auction

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

type FixedSwapParams struct {
	Quantity    uint64 `json:"quantity"`
	MaxPerBuyer uint64 `json:"maxPerBuyer,omitempty"`
}

type CreateParams struct {
	Type          Type
	Seller        Address
	Title         string
	Description   string
	StartingPrice *uint256.Int
	ReservePrice  *uint256.Int
	MinIncrement  *uint256.Int
	// 0 或早於現在表示立即開始
	StartTime       int64
	DurationSeconds int64
	Item            Item
	Dutch           *DutchSchedule
	Fixed           *FixedSwapParams
}

func (p CreateParams) validate(limits Limits) error {
	const op = "Create"
	invalid := func(format string, args ...any) error {
		return NewError(op, KindInvalidParameters, format, args...)
	}

	if !p.Type.Valid() {
		return invalid("unknown auction type")
	}
	if p.Seller.IsZero() {
		return invalid("seller is required")
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return invalid("title is required")
	}
	if utf8.RuneCountInString(title) > limits.MaxTitleLength {
		return invalid("title exceeds %d characters", limits.MaxTitleLength)
	}
	if utf8.RuneCountInString(p.Description) > limits.MaxDescriptionLength {
		return invalid("description exceeds %d characters", limits.MaxDescriptionLength)
	}
	if p.StartingPrice == nil || p.StartingPrice.IsZero() {
		return invalid("starting price must be positive")
	}
	if p.DurationSeconds <= 0 {
		return invalid("duration must be positive")
	}
	if p.DurationSeconds < limits.MinDuration || p.DurationSeconds > limits.MaxDuration {
		return invalid("duration must be between %d and %d seconds", limits.MinDuration, limits.MaxDuration)
	}
	if p.MinIncrement != nil && !p.MinIncrement.IsZero() && p.Type != TypeEnglish {
		return invalid("minimum increment only applies to english auctions")
	}
	if p.Dutch != nil && p.Type != TypeDutch {
		return invalid("decrement schedule only applies to dutch auctions")
	}
	if p.Fixed != nil && p.Type != TypeFixedSwap {
		return invalid("quantity terms only apply to fixed swap auctions")
	}

	switch p.Type {
	case TypeDutch:
		if p.ReservePrice != nil && !p.ReservePrice.Lt(p.StartingPrice) {
			return invalid("reserve price must be below starting price")
		}
		if p.Dutch == nil || p.Dutch.DecrementAmount == nil || p.Dutch.DecrementAmount.IsZero() {
			return invalid("decrement amount must be positive")
		}
		if p.Dutch.DecrementInterval < limits.MinDecrementInterval || p.Dutch.DecrementInterval > limits.MaxDecrementInterval {
			return invalid("decrement interval must be between %d and %d seconds",
				limits.MinDecrementInterval, limits.MaxDecrementInterval)
		}
	case TypeFixedSwap:
		if p.ReservePrice != nil && !p.ReservePrice.IsZero() {
			return invalid("fixed swap auctions have no reserve price")
		}
		if p.Fixed == nil || p.Fixed.Quantity == 0 {
			return invalid("quantity must be positive")
		}
		if p.Fixed.MaxPerBuyer > p.Fixed.Quantity {
			return invalid("max per buyer exceeds quantity")
		}
		if p.Item.IsPhysical && p.Fixed.Quantity != 1 {
			return invalid("physical items are sold as a single unit")
		}
	}

	return p.Item.validate(op, limits)
}

func (i Item) validate(op string, limits Limits) error {
	invalid := func(format string, args ...any) error {
		return NewError(op, KindInvalidParameters, format, args...)
	}
	if len(i.Images) > limits.MaxImages {
		return invalid("at most %d images", limits.MaxImages)
	}
	if slices.Contains(i.Images, "") {
		return invalid("image url cannot be empty")
	}
	if !i.IsPhysical {
		if i.Condition != "" || i.Dimensions != "" || i.Weight != 0 || i.ShippingAddress != "" {
			return invalid("shipping details are only allowed on physical items")
		}
		return nil
	}
	switch {
	case strings.TrimSpace(i.Name) == "":
		return invalid("physical item name is required")
	case strings.TrimSpace(i.Condition) == "":
		return invalid("physical item condition is required")
	case strings.TrimSpace(i.Dimensions) == "":
		return invalid("physical item dimensions are required")
	case i.Weight == 0:
		return invalid("physical item weight is required")
	}
	return nil
}

func newAuction(id string, p CreateParams, now int64) *Auction {
	start := max(p.StartTime, now)
	a := &Auction{
		ID:            id,
		Type:          p.Type,
		Seller:        p.Seller,
		Title:         strings.TrimSpace(p.Title),
		Description:   p.Description,
		StartingPrice: p.StartingPrice.Clone(),
		ReservePrice:  cloneInt(p.ReservePrice),
		CurrentPrice:  p.StartingPrice.Clone(),
		HighestBid:    new(uint256.Int),
		CreatedAt:     now,
		StartTime:     start,
		EndTime:       start + p.DurationSeconds,
		Status:        StatusActive,
		Outcome:       OutcomeOpen,
		Item:          p.Item.clone(),
	}
	if start > now {
		a.Status = StatusPending
	}
	if p.MinIncrement != nil && !p.MinIncrement.IsZero() {
		a.MinIncrement = p.MinIncrement.Clone()
	}

	switch p.Type {
	case TypeDutch:
		a.Dutch = &DutchSchedule{
			DecrementAmount:   p.Dutch.DecrementAmount.Clone(),
			DecrementInterval: p.Dutch.DecrementInterval,
		}
	case TypeSealedBid:
		a.SealedBids = make(map[Address]*SealedBid)
	case TypeFixedSwap:
		a.Fixed = &FixedSwapTerms{
			FixedPrice:        p.StartingPrice.Clone(),
			TotalQuantity:     p.Fixed.Quantity,
			RemainingQuantity: p.Fixed.Quantity,
			MaxPerBuyer:       p.Fixed.MaxPerBuyer,
		}
	}
	return a
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusActive},
	StatusActive:   {StatusEnded},
	StatusEnded:    {StatusSettled, StatusDisputed},
	StatusDisputed: {StatusSettled},
}

func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

func (a *Auction) transition(op string, to Status) error {
	if a.Status == StatusSettled {
		return NewError(op, KindAlreadySettled, "auction %s is settled", a.ID)
	}
	if !CanTransition(a.Status, to) {
		return NewError(op, KindInvalidState, "cannot move auction %s from %s to %s", a.ID, a.Status, to)
	}
	a.Status = to
	return nil
}

// activate 延遲套用 Pending → Active
func (a *Auction) activate(now int64) bool {
	if a.Status == StatusPending && now >= a.StartTime {
		a.Status = StatusActive
		return true
	}
	return false
}

// requireBiddable 出價類操作的共同前置條件
func (a *Auction) requireBiddable(op string, caller Address, now int64) error {
	if caller.IsZero() {
		return NewError(op, KindUnauthorized, "caller identity is required")
	}
	if a.Status != StatusActive {
		return NewError(op, KindNotActive, "auction %s is %s", a.ID, a.Status)
	}
	if a.IsExpired(now) {
		return NewError(op, KindNotActive, "auction %s has expired", a.ID)
	}
	if caller == a.Seller {
		return NewError(op, KindUnauthorized, "seller cannot bid on own auction")
	}
	return nil
}
