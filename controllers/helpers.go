package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/middleware"
	"github.com/cppla/ledger/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (string, bool) {
	uid := ctx.GetString(middleware.ContextUserIDKey)
	return uid, uid != ""
}

// ownerFromRoute is the guild named by :guild, or the caller's own account.
func ownerFromRoute(ctx *gin.Context) (ledger.Owner, bool) {
	if guildID := ctx.Param("guild"); guildID != "" {
		return ledger.Guild(guildID), true
	}
	uid, ok := getUserID(ctx)
	if !ok {
		return ledger.Owner{}, false
	}
	return ledger.User(uid), true
}

type ledgerFailure struct {
	err    error
	status int
	code   int
	msg    string
}

var ledgerFailures = []ledgerFailure{
	{ledger.ErrInsufficientBalance, http.StatusBadRequest, 40060, "insufficient balance"},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, 40063, "invalid amount"},
	{ledger.ErrInvalidReward, http.StatusBadRequest, 40064, "invalid reward"},
	{ledger.ErrInvalidOwner, http.StatusBadRequest, 40065, "invalid owner"},
	{ledger.ErrUnknownEvent, http.StatusBadRequest, 40066, "unknown event kind"},
	{ledger.ErrFutureActivity, http.StatusBadRequest, 40067, "activity date is in the future"},
	{ledger.ErrInvalidEvent, http.StatusBadRequest, 40069, "event is missing its source reference"},
	{ledger.ErrInvalidSource, http.StatusBadRequest, 40072, "invalid source reference"},
	{ledger.ErrRewardNotFound, http.StatusNotFound, 40461, "reward not found"},
	{ledger.ErrRedemptionNotFound, http.StatusNotFound, 40462, "redemption not found"},
	{ledger.ErrRewardUnavailable, http.StatusConflict, 40960, "reward unavailable"},
	{ledger.ErrSoldOut, http.StatusConflict, 40961, "reward sold out"},
	{ledger.ErrRedemptionLimitReached, http.StatusConflict, 40962, "redemption limit reached"},
}

// respondLedgerError maps ledger sentinels to the response envelope. Anything
// unknown is logged and reported with the fallback code.
func respondLedgerError(ctx *gin.Context, err error, fallbackCode int, fallbackMsg string) {
	for _, f := range ledgerFailures {
		if errors.Is(err, f.err) {
			utils.Error(ctx, f.status, f.code, f.msg)
			return
		}
	}
	utils.Sugar.Errorw(fallbackMsg, "path", ctx.FullPath(), "error", err)
	utils.Error(ctx, http.StatusInternalServerError, fallbackCode, fallbackMsg)
}
