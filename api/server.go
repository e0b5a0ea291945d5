package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oapi-codegen/runtime"

	"bidvault/auction"
	"bidvault/models"
)

type ImageUploader interface {
	Upload(ctx context.Context, r io.Reader) (string, error)
}

type ImageLog interface {
	CountSince(ctx context.Context, uploader auction.Address, since int64) (int64, error)
	Record(ctx context.Context, uploader auction.Address, url string, at int64) error
}

type TransactionReader interface {
	ListByAuction(ctx context.Context, auctionID string) ([]models.Transaction, error)
	ListByParty(ctx context.Context, party auction.Address, offset, limit int) ([]models.Transaction, error)
}

type serverOptions struct {
	logger         *slog.Logger
	authenticator  Authenticator
	images         ImageUploader
	imageLog       ImageLog
	transactions   TransactionReader
	metrics        *Metrics
	clock          auction.Clock
	uploadsPerHour int64
	accounts       Accounts
	operator       auction.Address
}

type ServerOption func(*serverOptions)

// WithServerLogger 設置日誌記錄器
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

func WithAuthenticator(auth Authenticator) ServerOption {
	return func(o *serverOptions) {
		o.authenticator = auth
	}
}

// WithImages 啟用 POST /images；limitPerHour 為 0 表示不限制
func WithImages(uploader ImageUploader, log ImageLog, limitPerHour int64) ServerOption {
	return func(o *serverOptions) {
		o.images = uploader
		o.imageLog = log
		o.uploadsPerHour = limitPerHour
	}
}

func WithTransactions(reader TransactionReader) ServerOption {
	return func(o *serverOptions) {
		o.transactions = reader
	}
}

func WithMetrics(metrics *Metrics) ServerOption {
	return func(o *serverOptions) {
		o.metrics = metrics
	}
}

func WithServerClock(clock auction.Clock) ServerOption {
	return func(o *serverOptions) {
		o.clock = clock
	}
}

// Server 把拍賣引擎包成 HTTP API
type Server struct {
	engine      *auction.Engine
	auth        Authenticator
	images      ImageUploader
	imageLog    ImageLog
	txs         TransactionReader
	metrics     *Metrics
	clock       auction.Clock
	htmlChecker *bluemonday.Policy
	validator   *requestValidator
	logger      *slog.Logger
	options     serverOptions
}

func NewServer(engine *auction.Engine, opts ...ServerOption) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	// 默認選項
	options := serverOptions{
		logger: slog.Default(),
		clock:  auction.SystemClock{},
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	if options.authenticator == nil {
		return nil, errors.New("authenticator cannot be nil")
	}
	if (options.images == nil) != (options.imageLog == nil) {
		return nil, errors.New("image uploader and image log must be set together")
	}
	if options.metrics == nil {
		options.metrics = NewMetrics()
	}

	doc, err := LoadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	validator, err := newRequestValidator(doc)
	if err != nil {
		return nil, err
	}

	return &Server{
		engine:      engine,
		auth:        options.authenticator,
		images:      options.images,
		imageLog:    options.imageLog,
		txs:         options.transactions,
		metrics:     options.metrics,
		clock:       options.clock,
		htmlChecker: bluemonday.UGCPolicy(),
		validator:   validator,
		logger:      options.logger.With(slog.String("caller", "Server")),
		options:     options,
	}, nil
}

// Router 建立所有路由；寫入操作都需要 bearer token
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.metrics.Middleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openapiDocument)
	})

	public := router.Group("/", s.validator.Middleware())
	public.GET("/auctions", s.ListAuctions)
	public.GET("/auctions/:id", s.GetAuction)
	public.GET("/auctions/:id/price", s.GetPrice)
	if s.txs != nil {
		public.GET("/auctions/:id/transactions", s.ListTransactions)
	}

	// 先驗證身分再檢查參數，未登入的請求一律 401
	authorized := router.Group("/", RequireCaller(s.auth, s.options.logger), s.validator.Middleware())
	authorized.POST("/auctions", s.CreateAuction)
	authorized.GET("/auctions/:id/sealed-bids/me", s.GetOwnSealedBid)
	authorized.POST("/auctions/:id/bids", s.PlaceBid)
	authorized.POST("/auctions/:id/accept", s.AcceptPrice)
	authorized.POST("/auctions/:id/sealed-bids", s.SubmitSealedBid)
	authorized.POST("/auctions/:id/reveal", s.RevealWinner)
	authorized.POST("/auctions/:id/purchases", s.Purchase)
	authorized.POST("/auctions/:id/close", s.CloseAuction)
	authorized.POST("/auctions/:id/settle", s.SettleAuction)
	authorized.POST("/auctions/:id/escrow/shipment", s.ConfirmShipped)
	authorized.POST("/auctions/:id/escrow/receipt", s.ConfirmReceived)
	authorized.POST("/auctions/:id/escrow/dispute", s.RaiseDispute)
	authorized.POST("/auctions/:id/escrow/resolution", s.ResolveDispute)
	if s.images != nil {
		authorized.POST("/images", s.UploadImage)
	}
	if s.options.accounts != nil {
		authorized.GET("/ledger/balance", s.GetBalance)
		authorized.POST("/ledger/credits", s.Credit)
	}
	if s.txs != nil {
		authorized.GET("/ledger/transactions", s.ListOwnTransactions)
	}
	return router
}

// respond 記錄操作結果並回傳拍賣的公開視圖
func (s *Server) respond(c *gin.Context, op string, status int, a *auction.Auction, err error) {
	s.metrics.observeOperation(op, err)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(status, newAuctionResponse(a))
}

// Create an auction
// (POST /auctions)
func (s *Server) CreateAuction(c *gin.Context) {
	const op = "CreateAuction"
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	params, err := req.toParams(callerFrom(c), s.htmlChecker.Sanitize)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.engine.Create(c.Request.Context(), params)
	if err == nil {
		c.Header("Location", "/auctions/"+a.ID)
	}
	s.respond(c, op, http.StatusCreated, a, err)
}

// List auctions
// (GET /auctions?status=&type=&seller=&limit=&offset=)
func (s *Server) ListAuctions(c *gin.Context) {
	const op = "ListAuctions"
	var filter auction.ListFilter
	if v := c.Query("status"); v != "" {
		status, err := auction.ParseStatus(v)
		if err != nil {
			badRequest(c, "unknown status "+strconv.Quote(v))
			return
		}
		filter.Status = status
	}
	if v := c.Query("type"); v != "" {
		auctionType, err := auction.ParseType(v)
		if err != nil {
			badRequest(c, "unknown type "+strconv.Quote(v))
			return
		}
		filter.Type = auctionType
	}
	filter.Seller = auction.NormalizeAddress(c.Query("seller"))
	if !bindPage(c, &filter.Offset, &filter.Limit) {
		return
	}

	list, err := s.engine.List(c.Request.Context(), filter)
	s.metrics.observeOperation(op, err)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	resp := make([]auctionResponse, len(list))
	for i, a := range list {
		resp[i] = newAuctionResponse(a)
	}
	c.JSON(http.StatusOK, resp)
}

// Get auction details
// (GET /auctions/:id)
func (s *Server) GetAuction(c *gin.Context) {
	const op = "GetAuction"
	a, err := s.engine.Get(c.Request.Context(), c.Param("id"))
	s.respond(c, op, http.StatusOK, a, err)
}

// Get the current price, time based for dutch auctions
// (GET /auctions/:id/price)
func (s *Server) GetPrice(c *gin.Context) {
	const op = "GetPrice"
	price, err := s.engine.CurrentPrice(c.Request.Context(), c.Param("id"))
	s.metrics.observeOperation(op, err)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, priceResponse{
		AuctionID:    c.Param("id"),
		CurrentPrice: formatAmount(price),
		At:           s.clock.Now(),
	})
}

// Get the caller's own sealed bid
// (GET /auctions/:id/sealed-bids/me)
func (s *Server) GetOwnSealedBid(c *gin.Context) {
	const op = "GetOwnSealedBid"
	bid, err := s.engine.SealedBid(c.Request.Context(), c.Param("id"), callerFrom(c))
	s.metrics.observeOperation(op, err)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, newSealedBidResponse(bid))
}

// List ledger transactions recorded for an auction
// (GET /auctions/:id/transactions)
func (s *Server) ListTransactions(c *gin.Context) {
	const op = "ListTransactions"
	rows, err := s.txs.ListByAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	resp := make([]transactionResponse, len(rows))
	for i, row := range rows {
		resp[i] = newTransactionResponse(row)
	}
	c.JSON(http.StatusOK, resp)
}

// List the caller's ledger transactions, newest first
// (GET /ledger/transactions?limit=&offset=)
func (s *Server) ListOwnTransactions(c *gin.Context) {
	const op = "ListOwnTransactions"
	var offset, limit int
	if !bindPage(c, &offset, &limit) {
		return
	}
	rows, err := s.txs.ListByParty(c.Request.Context(), callerFrom(c), offset, limit)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	resp := make([]transactionResponse, len(rows))
	for i, row := range rows {
		resp[i] = newTransactionResponse(row)
	}
	c.JSON(http.StatusOK, resp)
}

// bindPage 讀取 offset 與 limit 查詢參數，未給時保持原值
func bindPage(c *gin.Context, offset, limit *int) bool {
	query := c.Request.URL.Query()
	for name, dst := range map[string]*int{"offset": offset, "limit": limit} {
		if err := runtime.BindQueryParameter("form", true, false, name, query, dst); err != nil || *dst < 0 {
			badRequest(c, name+" must be a non-negative integer")
			return false
		}
	}
	return true
}

func (s *Server) bindAmount(c *gin.Context) (*amountRequest, bool) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	return &req, true
}

// Place an english bid
// (POST /auctions/:id/bids)
func (s *Server) PlaceBid(c *gin.Context) {
	const op = "PlaceBid"
	req, ok := s.bindAmount(c)
	if !ok {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.engine.PlaceBid(c.Request.Context(), c.Param("id"), callerFrom(c), amount)
	s.respond(c, op, http.StatusOK, a, err)
}

// Accept the current dutch price
// (POST /auctions/:id/accept)
func (s *Server) AcceptPrice(c *gin.Context) {
	const op = "AcceptPrice"
	req, ok := s.bindAmount(c)
	if !ok {
		return
	}
	payment, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.engine.AcceptCurrentPrice(c.Request.Context(), c.Param("id"), callerFrom(c), payment)
	s.respond(c, op, http.StatusOK, a, err)
}

// Submit or replace a sealed bid
// (POST /auctions/:id/sealed-bids)
func (s *Server) SubmitSealedBid(c *gin.Context) {
	const op = "SubmitSealedBid"
	req, ok := s.bindAmount(c)
	if !ok {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.engine.SubmitBid(c.Request.Context(), c.Param("id"), callerFrom(c), amount)
	s.respond(c, op, http.StatusAccepted, a, err)
}

// Reveal the sealed bid winner
// (POST /auctions/:id/reveal)
func (s *Server) RevealWinner(c *gin.Context) {
	const op = "RevealWinner"
	a, err := s.engine.RevealWinner(c.Request.Context(), c.Param("id"))
	s.respond(c, op, http.StatusOK, a, err)
}

// Buy units of a fixed swap auction
// (POST /auctions/:id/purchases)
func (s *Server) Purchase(c *gin.Context) {
	const op = "Purchase"
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	payment, err := parseRequiredAmount("payment", req.Payment)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.engine.Purchase(c.Request.Context(), c.Param("id"), callerFrom(c), req.Quantity, payment)
	s.respond(c, op, http.StatusOK, a, err)
}

// (POST /auctions/:id/close)
func (s *Server) CloseAuction(c *gin.Context) {
	const op = "CloseAuction"
	a, err := s.engine.Close(c.Request.Context(), c.Param("id"))
	s.respond(c, op, http.StatusOK, a, err)
}

// (POST /auctions/:id/settle)
func (s *Server) SettleAuction(c *gin.Context) {
	const op = "SettleAuction"
	a, err := s.engine.Settle(c.Request.Context(), c.Param("id"))
	s.respond(c, op, http.StatusOK, a, err)
}

// Seller confirms shipment
// (POST /auctions/:id/escrow/shipment)
func (s *Server) ConfirmShipped(c *gin.Context) {
	const op = "ConfirmShipped"
	var req shipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.engine.ConfirmShipped(c.Request.Context(), c.Param("id"), callerFrom(c), req.TrackingNumber)
	s.respond(c, op, http.StatusOK, a, err)
}

// Buyer confirms receipt
// (POST /auctions/:id/escrow/receipt)
func (s *Server) ConfirmReceived(c *gin.Context) {
	const op = "ConfirmReceived"
	a, err := s.engine.ConfirmReceived(c.Request.Context(), c.Param("id"), callerFrom(c))
	s.respond(c, op, http.StatusOK, a, err)
}

// (POST /auctions/:id/escrow/dispute)
func (s *Server) RaiseDispute(c *gin.Context) {
	const op = "RaiseDispute"
	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := s.engine.RaiseDispute(c.Request.Context(), c.Param("id"), callerFrom(c), s.htmlChecker.Sanitize(req.Reason))
	s.respond(c, op, http.StatusOK, a, err)
}

// Arbiter resolves a dispute
// (POST /auctions/:id/escrow/resolution)
func (s *Server) ResolveDispute(c *gin.Context) {
	const op = "ResolveDispute"
	var req resolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	resolution, err := auction.ParseResolution(req.Resolution)
	if err != nil || resolution == auction.ResolutionNone {
		badRequest(c, "resolution must be release or refund")
		return
	}
	a, err := s.engine.ResolveDispute(c.Request.Context(), c.Param("id"), callerFrom(c), resolution)
	s.respond(c, op, http.StatusOK, a, err)
}
