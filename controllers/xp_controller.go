package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/middleware"
	"github.com/cppla/ledger/models"
	"github.com/cppla/ledger/utils"
)

// XPController serves XP accounts, history and leaderboards.
type XPController struct {
	l        *ledger.Ledger
	boardTTL time.Duration
	maxBoard int
}

// NewXPController creates a new XPController. boardTTL 0 disables leaderboard caching.
func NewXPController(l *ledger.Ledger, boardSize int, boardTTL time.Duration) *XPController {
	if boardSize <= 0 || boardSize > 100 {
		boardSize = 50
	}
	return &XPController{l: l, boardTTL: boardTTL, maxBoard: boardSize}
}

// Me returns the owner's XP account with level progress and today's allowance.
// Mounted both as /xp/me and /guilds/:guild/xp.
func (x *XPController) Me(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	acct, err := x.l.XPAccount(ctx.Request.Context(), owner)
	if err != nil {
		respondLedgerError(ctx, err, 50060, "failed to load xp account")
		return
	}
	level, err := ledger.DescribeLevel(acct.TotalXP)
	if err != nil {
		respondLedgerError(ctx, err, 50060, "failed to load xp account")
		return
	}
	allowance, err := x.l.Allowance(ctx.Request.Context(), owner)
	if err != nil {
		respondLedgerError(ctx, err, 50060, "failed to load xp account")
		return
	}
	utils.Success(ctx, gin.H{
		"account":   acct,
		"level":     level,
		"allowance": allowance,
	})
}

// Transactions lists XP history newest first.
func (x *XPController) Transactions(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	items, total, err := x.l.XPHistory(ctx.Request.Context(), owner, page, size)
	if err != nil {
		respondLedgerError(ctx, err, 50061, "failed to load xp history")
		return
	}
	utils.SuccessPage(ctx, items, total, page, size)
}

// Leaderboard ranks users (default) or guilds by total XP.
// For scope=guilds the caller's rank refers to ?guild=, when they belong to it.
func (x *XPController) Leaderboard(ctx *gin.Context) {
	kind := models.OwnerUser
	switch ctx.DefaultQuery("scope", "users") {
	case "users":
	case "guilds":
		kind = models.OwnerGuild
	default:
		utils.Error(ctx, http.StatusBadRequest, 40068, "scope must be users or guilds")
		return
	}
	limit := x.maxBoard
	if n, err := strconv.Atoi(ctx.Query("limit")); err == nil && n > 0 && n < limit {
		limit = n
	}

	viewer := ""
	if kind == models.OwnerUser {
		viewer, _ = getUserID(ctx)
	} else if g := ctx.Query("guild"); g != "" {
		if claims := middleware.ClaimsFrom(ctx); claims != nil && claims.InGuild(g) {
			viewer = g
		}
	}

	reqCtx := ctx.Request.Context()
	key := utils.LeaderboardCacheKey(string(kind), limit)
	var entries []ledger.LeaderboardEntry
	if x.boardTTL > 0 && utils.CacheGetJSON(key, &entries) {
		board := &ledger.Leaderboard{Kind: kind, Entries: entries}
		if viewer != "" {
			rank, err := x.l.Rank(reqCtx, ledger.Owner{Kind: kind, ID: viewer})
			if err != nil {
				respondLedgerError(ctx, err, 50062, "failed to load leaderboard")
				return
			}
			board.YourRank = rank
		}
		utils.Success(ctx, board)
		return
	}

	board, err := x.l.Leaderboard(reqCtx, kind, limit, viewer)
	if err != nil {
		respondLedgerError(ctx, err, 50062, "failed to load leaderboard")
		return
	}
	if x.boardTTL > 0 {
		utils.CacheSetJSON(key, board.Entries, x.boardTTL)
	}
	utils.Success(ctx, board)
}
