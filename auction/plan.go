package auction

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// plan 收集一次操作要提交的資金移動與事件。
// 規則函式只修改拍賣的拷貝並填寫 plan，由 Engine 統一提交。
type plan struct {
	auctionID string
	now       int64
	transfers []Transfer
	flags     map[string]transferFlag
	// disclosures 結算時補發金額的密封押金
	disclosures []Transfer
	events      []Event
	dispute     *disputeSubmission
	unchanged   bool
}

type transferFlag uint8

const (
	// flagConcealed 揭曉前事件不帶金額
	flagConcealed transferFlag = 1 << iota
	// flagAttempt 冪等鍵含本次序號，提交失敗時要沖回
	flagAttempt
)

type disputeSubmission struct {
	reason string
}

func newPlan(a *Auction, now int64) *plan {
	return &plan{auctionID: a.ID, now: now}
}

func (p *plan) add(kind TransferKind, key string, party Address, amount *uint256.Int, flags []transferFlag) {
	if amount == nil || amount.IsZero() {
		return
	}
	p.transfers = append(p.transfers, Transfer{Kind: kind, Key: key, Party: party, Amount: amount.Clone()})
	for _, f := range flags {
		if p.flags == nil {
			p.flags = make(map[string]transferFlag)
		}
		p.flags[key] |= f
	}
}

func (p *plan) deposit(key string, payer Address, amount *uint256.Int, flags ...transferFlag) {
	p.add(TransferDeposit, key, payer, amount, flags)
}

func (p *plan) payout(key string, recipient Address, amount *uint256.Int, flags ...transferFlag) {
	p.add(TransferPayout, key, recipient, amount, flags)
}

func (p *plan) refund(key string, payer Address, amount *uint256.Int, flags ...transferFlag) {
	p.add(TransferRefund, key, payer, amount, flags)
}

func (p *plan) has(key string, flag transferFlag) bool {
	return p.flags[key]&flag != 0
}

// disclose 在提交後以原冪等鍵補發押金金額
func (p *plan) disclose(key string, payer Address, amount *uint256.Int) {
	p.disclosures = append(p.disclosures, Transfer{Kind: TransferDeposit, Key: key, Party: payer, Amount: amount.Clone()})
}

// emit attrs 為 key, value 成對
func (p *plan) emit(typ string, actor Address, amount *uint256.Int, attrs ...string) {
	evt := Event{Type: typ, AuctionID: p.auctionID, Actor: actor, Time: p.now}
	if amount != nil {
		evt.Amount = amount.Dec()
	}
	if len(attrs) > 1 {
		evt.Attributes = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			evt.Attributes[attrs[i]] = attrs[i+1]
		}
	}
	p.events = append(p.events, evt)
}

// ledgerKey 組成冪等鍵 <auctionId>/<phase>[/<party>]
func ledgerKey(auctionID string, parts ...string) string {
	return strings.Join(append([]string{auctionID}, parts...), "/")
}

func seqKey(seq uint64) string {
	return strconv.FormatUint(seq, 10)
}

// nextSequence 只在拷貝上遞增，提交失敗時不會被持久化
func (a *Auction) nextSequence() uint64 {
	a.Sequence++
	return a.Sequence
}
