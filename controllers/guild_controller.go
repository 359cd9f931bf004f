package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/utils"
)

// GuildController serves guild-only views: level tiers and contributors.
type GuildController struct {
	l *ledger.Ledger
}

// NewGuildController creates a new GuildController.
func NewGuildController(l *ledger.Ledger) *GuildController {
	return &GuildController{l: l}
}

// Level returns the guild's level with tier name and perks.
func (g *GuildController) Level(ctx *gin.Context) {
	acct, err := g.l.XPAccount(ctx.Request.Context(), ledger.Guild(ctx.Param("guild")))
	if err != nil {
		respondLedgerError(ctx, err, 50090, "failed to load guild level")
		return
	}
	info, err := ledger.GuildLevel(acct.TotalXP)
	if err != nil {
		respondLedgerError(ctx, err, 50090, "failed to load guild level")
		return
	}
	utils.Success(ctx, info)
}

// Contributors ranks members by the XP they earned for the guild.
func (g *GuildController) Contributors(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 10
	}
	list, err := g.l.Contributors(ctx.Request.Context(), ctx.Param("guild"), limit)
	if err != nil {
		respondLedgerError(ctx, err, 50091, "failed to load contributors")
		return
	}
	utils.Success(ctx, gin.H{"contributors": list})
}
