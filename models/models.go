package models

// All 回傳需要 migrate 的所有 model
func All() []any {
	return []any{
		&Auction{},
		&SealedBid{},
		&Purchase{},
		&Escrow{},
		&Transaction{},
		&Image{},
	}
}
