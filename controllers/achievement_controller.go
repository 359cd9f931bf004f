package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/utils"
)

// AchievementController lists achievements and habit streaks.
type AchievementController struct {
	l *ledger.Ledger
}

// NewAchievementController creates a new AchievementController.
func NewAchievementController(l *ledger.Ledger) *AchievementController {
	return &AchievementController{l: l}
}

// List merges the catalog with the owner's unlocks.
func (a *AchievementController) List(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	views, err := a.l.Achievements(ctx.Request.Context(), owner)
	if err != nil {
		respondLedgerError(ctx, err, 50065, "failed to load achievements")
		return
	}
	var unlocked int
	for _, v := range views {
		if v.Unlocked {
			unlocked++
		}
	}
	utils.Success(ctx, gin.H{
		"achievements":   views,
		"unlocked_count": unlocked,
		"total_count":    len(views),
	})
}

// Streaks returns the caller's per-habit streaks.
func (a *AchievementController) Streaks(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	streaks, err := a.l.HabitStreaks(ctx.Request.Context(), owner)
	if err != nil {
		respondLedgerError(ctx, err, 50066, "failed to load streaks")
		return
	}
	utils.Success(ctx, gin.H{"streaks": streaks})
}
