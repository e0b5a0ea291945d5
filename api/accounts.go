package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"bidvault/auction"
)

// Accounts 帳本餘額的查詢與入金
type Accounts interface {
	Balance(party auction.Address) (*uint256.Int, error)
	Credit(party auction.Address, amount *uint256.Int) error
}

type creditRequest struct {
	Party  string `json:"party" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type balanceResponse struct {
	Party   string `json:"party"`
	Balance string `json:"balance"`
}

// WithAccounts 啟用帳本路由；operator 為空時只能查詢餘額
func WithAccounts(accounts Accounts, operator auction.Address) ServerOption {
	return func(o *serverOptions) {
		o.accounts = accounts
		o.operator = operator
	}
}

// Get the caller's ledger balance
// (GET /ledger/balance)
func (s *Server) GetBalance(c *gin.Context) {
	const op = "GetBalance"
	caller := callerFrom(c)
	balance, err := s.options.accounts.Balance(caller)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{Party: caller.String(), Balance: formatAmount(balance)})
}

// Operator credits a party
// (POST /ledger/credits)
func (s *Server) Credit(c *gin.Context) {
	const op = "Credit"
	caller := callerFrom(c)
	if s.options.operator.IsZero() || caller != s.options.operator {
		c.JSON(http.StatusForbidden, errorResponse{Message: "only the ledger operator can credit balances", Kind: auction.KindUnauthorized.String()})
		return
	}
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	party := auction.NormalizeAddress(req.Party)
	if err := s.options.accounts.Credit(party, amount); err != nil {
		s.writeError(c, op, err)
		return
	}
	balance, err := s.options.accounts.Balance(party)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{Party: party.String(), Balance: formatAmount(balance)})
}
