package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"bidvault/auction"
)

type errorResponse struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

var kindStatus = map[auction.Kind]int{
	auction.KindInvalidParameters:   http.StatusBadRequest,
	auction.KindUnauthorized:        http.StatusForbidden,
	auction.KindNotFound:            http.StatusNotFound,
	auction.KindInsufficientBalance: http.StatusPaymentRequired,
	auction.KindBidTooLow:           http.StatusConflict,
	auction.KindNotExpired:          http.StatusConflict,
	auction.KindAlreadyShipped:      http.StatusConflict,
	auction.KindNotShipped:          http.StatusConflict,
	auction.KindNotPhysicalItem:     http.StatusConflict,
	auction.KindNoBids:              http.StatusConflict,
	auction.KindAlreadySettled:      http.StatusConflict,
	auction.KindNotActive:           http.StatusConflict,
	auction.KindInvalidState:        http.StatusConflict,
	auction.KindConflict:            http.StatusConflict,
}

// statusOf 領域錯誤依分類對應，其餘視為內部錯誤
func statusOf(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	if status, ok := kindStatus[auction.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(c *gin.Context, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		s.logger.Error("Request failed", slog.String("op", op), slog.Any("error", err))
		c.JSON(status, errorResponse{Message: http.StatusText(status)})
		return
	}

	response := errorResponse{Message: err.Error(), Kind: auction.KindOf(err).String()}
	var domainErr *auction.Error
	if errors.As(err, &domainErr) && domainErr.Reason != "" {
		response.Message = domainErr.Reason
	}
	c.JSON(status, response)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Message: message, Kind: auction.KindInvalidParameters.String()})
}
