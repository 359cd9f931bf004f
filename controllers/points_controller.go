package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/utils"
)

// PointsController serves spendable balances, for users and guild treasuries.
type PointsController struct {
	l *ledger.Ledger
}

// NewPointsController creates a new PointsController.
func NewPointsController(l *ledger.Ledger) *PointsController {
	return &PointsController{l: l}
}

// Me returns the balance and today's remaining points allowance.
func (p *PointsController) Me(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	acct, err := p.l.PointsAccount(ctx.Request.Context(), owner)
	if err != nil {
		respondLedgerError(ctx, err, 50063, "failed to load points account")
		return
	}
	allowance, err := p.l.Allowance(ctx.Request.Context(), owner)
	if err != nil {
		respondLedgerError(ctx, err, 50063, "failed to load points account")
		return
	}
	utils.Success(ctx, gin.H{
		"account":          acct,
		"points_remaining": allowance.PointsRemaining,
		"points_earned":    allowance.PointsEarned,
	})
}

// Transactions lists points history newest first.
func (p *PointsController) Transactions(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	items, total, err := p.l.PointsHistory(ctx.Request.Context(), owner, page, size)
	if err != nil {
		respondLedgerError(ctx, err, 50064, "failed to load points history")
		return
	}
	utils.SuccessPage(ctx, items, total, page, size)
}
