package auction

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/holiman/uint256"
)

// Address 是錢包地址，比較前一律轉小寫
type Address string

func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

type Type uint8

const (
	TypeEnglish Type = iota + 1
	TypeDutch
	TypeSealedBid
	TypeFixedSwap
)

var typeNames = map[Type]string{
	TypeEnglish:   "english",
	TypeDutch:     "dutch",
	TypeSealedBid: "sealed",
	TypeFixedSwap: "fixed",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, NewError("ParseType", KindInvalidParameters, "unknown auction type %q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	v, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type Status uint8

const (
	StatusPending Status = iota + 1
	StatusActive
	StatusEnded
	StatusDisputed
	StatusSettled
)

var statusNames = map[Status]string{
	StatusPending:  "pending",
	StatusActive:   "active",
	StatusEnded:    "ended",
	StatusDisputed: "disputed",
	StatusSettled:  "settled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if strings.EqualFold(name, s) {
			return st, nil
		}
	}
	return 0, NewError("ParseStatus", KindInvalidParameters, "unknown auction status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Outcome 記錄結算結果，Open 表示尚未結算
type Outcome uint8

const (
	OutcomeOpen Outcome = iota
	OutcomeSold
	OutcomeNoSale
)

var outcomeNames = map[Outcome]string{
	OutcomeOpen:   "open",
	OutcomeSold:   "sold",
	OutcomeNoSale: "no_sale",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

func ParseOutcome(s string) (Outcome, error) {
	for o, name := range outcomeNames {
		if name == s {
			return o, nil
		}
	}
	return 0, NewError("ParseOutcome", KindInvalidParameters, "unknown outcome %q", s)
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	v, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Item 拍賣標的，建立後唯讀
type Item struct {
	IsPhysical      bool     `json:"isPhysical"`
	Name            string   `json:"name,omitempty"`
	Description     string   `json:"description,omitempty"`
	Condition       string   `json:"condition,omitempty"`
	Dimensions      string   `json:"dimensions,omitempty"`
	Weight          uint64   `json:"weight,omitempty"`
	ShippingAddress string   `json:"shippingAddress,omitempty"`
	Images          []string `json:"images,omitempty"`
}

func (i Item) clone() Item {
	i.Images = slices.Clone(i.Images)
	return i
}

// DutchSchedule 每 DecrementInterval 秒降價 DecrementAmount
type DutchSchedule struct {
	DecrementAmount   *uint256.Int `json:"decrementAmount"`
	DecrementInterval int64        `json:"decrementInterval"`
}

type FixedSwapTerms struct {
	FixedPrice        *uint256.Int `json:"fixedPrice"`
	TotalQuantity     uint64       `json:"totalQuantity"`
	RemainingQuantity uint64       `json:"remainingQuantity"`
	// 0 表示不限
	MaxPerBuyer uint64 `json:"maxPerBuyer,omitempty"`
}

type SealedBid struct {
	Bidder      Address      `json:"bidder"`
	Amount      *uint256.Int `json:"amount"`
	SubmittedAt int64        `json:"submittedAt"`
	Sequence    uint64       `json:"sequence"`
}

type Purchase struct {
	Buyer    Address      `json:"buyer"`
	Quantity uint64       `json:"quantity"`
	Amount   *uint256.Int `json:"amount"`
	At       int64        `json:"at"`
	Sequence uint64       `json:"sequence"`
}

type Auction struct {
	ID            string       `json:"id"`
	Type          Type         `json:"type"`
	Seller        Address      `json:"seller"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	StartingPrice *uint256.Int `json:"startingPrice"`
	ReservePrice  *uint256.Int `json:"reservePrice,omitempty"`
	MinIncrement  *uint256.Int `json:"minIncrement,omitempty"`
	CurrentPrice  *uint256.Int `json:"currentPrice"`
	CreatedAt     int64        `json:"createdAt"`
	StartTime     int64        `json:"startTime"`
	EndTime       int64        `json:"endTime"`
	Status        Status       `json:"status"`
	Outcome       Outcome      `json:"outcome"`
	HighestBidder Address      `json:"highestBidder,omitempty"`
	HighestBid    *uint256.Int `json:"highestBid"`
	Item          Item         `json:"item"`

	Dutch      *DutchSchedule         `json:"dutch,omitempty"`
	Fixed      *FixedSwapTerms        `json:"fixed,omitempty"`
	SealedBids map[Address]*SealedBid `json:"sealedBids,omitempty"`
	Purchases  []*Purchase            `json:"purchases,omitempty"`
	Escrow     *Escrow                `json:"escrow,omitempty"`

	Sequence uint64 `json:"sequence"`
	Version  uint64 `json:"version"`
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

// Clone 深拷貝，引擎只在拷貝上修改
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	c.StartingPrice = cloneInt(a.StartingPrice)
	c.ReservePrice = cloneInt(a.ReservePrice)
	c.MinIncrement = cloneInt(a.MinIncrement)
	c.CurrentPrice = cloneInt(a.CurrentPrice)
	c.HighestBid = cloneInt(a.HighestBid)
	c.Item = a.Item.clone()
	if a.Dutch != nil {
		d := *a.Dutch
		d.DecrementAmount = cloneInt(a.Dutch.DecrementAmount)
		c.Dutch = &d
	}
	if a.Fixed != nil {
		f := *a.Fixed
		f.FixedPrice = cloneInt(a.Fixed.FixedPrice)
		c.Fixed = &f
	}
	if a.SealedBids != nil {
		c.SealedBids = make(map[Address]*SealedBid, len(a.SealedBids))
		for bidder, bid := range a.SealedBids {
			b := *bid
			b.Amount = cloneInt(bid.Amount)
			c.SealedBids[bidder] = &b
		}
	}
	if a.Purchases != nil {
		c.Purchases = make([]*Purchase, len(a.Purchases))
		for i, p := range a.Purchases {
			cp := *p
			cp.Amount = cloneInt(p.Amount)
			c.Purchases[i] = &cp
		}
	}
	c.Escrow = a.Escrow.Clone()
	return &c
}

// IsExpired 判斷是否已過結束時間
func (a *Auction) IsExpired(now int64) bool {
	return now >= a.EndTime
}

// SealedBidders 依提交順序回傳出價者
func (a *Auction) SealedBidders() []Address {
	bids := slices.Collect(maps.Values(a.SealedBids))
	slices.SortFunc(bids, func(x, y *SealedBid) int {
		return compareSubmission(x, y)
	})
	out := make([]Address, len(bids))
	for i, b := range bids {
		out[i] = b.Bidder
	}
	return out
}

// publicView 密封出價在結束前不得外流
func (a *Auction) publicView(now int64) *Auction {
	v := a.Clone()
	if v.Type == TypeSealedBid && (v.Status == StatusPending || v.Status == StatusActive) {
		v.SealedBids = nil
	}
	if v.Type == TypeDutch && v.Status == StatusActive {
		v.CurrentPrice = dutchPrice(v, now)
	}
	return v
}
