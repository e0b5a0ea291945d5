package auction

const (
	DefaultFeeBps  uint64 = 200
	BpsDenominator uint64 = 10_000
)

// Limits 建立拍賣時的欄位限制，時間單位為秒
type Limits struct {
	MaxTitleLength       int
	MaxDescriptionLength int
	MinDuration          int64
	MaxDuration          int64
	MinDecrementInterval int64
	MaxDecrementInterval int64
	MaxImages            int
}

func DefaultLimits() Limits {
	return Limits{
		MaxTitleLength:       100,
		MaxDescriptionLength: 1000,
		MinDuration:          5 * 60,
		MaxDuration:          30 * 24 * 60 * 60,
		MinDecrementInterval: 60,
		MaxDecrementInterval: 24 * 60 * 60,
		MaxImages:            10,
	}
}

// Policy 平台層級的結算規則
type Policy struct {
	// 託管手續費，單位 bps
	FeeBps       uint64
	FeeRecipient Address
	// 唯一可以裁決爭議的身分
	Arbiter Address
	// 英式拍賣是否套用底價
	EnforceEnglishReserve bool
	// 流拍時向得標者收取的手續費，預設 0 即全額退款
	NoSaleFeeBps uint64
	Limits       Limits
}

func DefaultPolicy() Policy {
	return Policy{
		FeeBps:                DefaultFeeBps,
		EnforceEnglishReserve: true,
		Limits:                DefaultLimits(),
	}
}

func (p Policy) validate() error {
	const op = "Policy.validate"
	if p.FeeBps > BpsDenominator {
		return NewError(op, KindInvalidParameters, "fee bps %d exceeds %d", p.FeeBps, BpsDenominator)
	}
	if p.NoSaleFeeBps > BpsDenominator {
		return NewError(op, KindInvalidParameters, "no-sale fee bps %d exceeds %d", p.NoSaleFeeBps, BpsDenominator)
	}
	if (p.FeeBps > 0 || p.NoSaleFeeBps > 0) && p.FeeRecipient.IsZero() {
		return NewError(op, KindInvalidParameters, "fee recipient is required when fees are charged")
	}
	if p.Limits.MinDuration > p.Limits.MaxDuration {
		return NewError(op, KindInvalidParameters, "min duration exceeds max duration")
	}
	if p.Limits.MinDecrementInterval > p.Limits.MaxDecrementInterval {
		return NewError(op, KindInvalidParameters, "min decrement interval exceeds max decrement interval")
	}
	return nil
}
