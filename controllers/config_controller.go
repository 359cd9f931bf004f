package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/utils"
)

// ConfigController publishes the effective ledger rules to clients.
type ConfigController struct {
	l *ledger.Ledger
}

// NewConfigController creates a new ConfigController.
func NewConfigController(l *ledger.Ledger) *ConfigController { return &ConfigController{l: l} }

// GetRules returns caps, clamps, the streak ladder and the level curve.
func (c *ConfigController) GetRules(ctx *gin.Context) {
	p := c.l.Policy()
	levels := make([]gin.H, 0, 10)
	for lvl := 1; lvl <= 10; lvl++ {
		levels = append(levels, gin.H{"level": lvl, "xp": ledger.Threshold(lvl)})
	}
	utils.Success(ctx, gin.H{
		"daily_xp_cap":      p.DailyXPCap,
		"daily_points_cap":  p.DailyPointsCap,
		"max_task_points":   p.MaxTaskPoints,
		"max_habit_points":  p.MaxHabitPoints,
		"max_multiplier":    p.MaxMultiplier,
		"timezone":          p.Location.String(),
		"streak_multiplier": ledger.StreakTiers(),
		"level_formula":     "100 * L * (L + 1) / 2 for L >= 2",
		"level_thresholds":  levels,
		"task_xp": gin.H{
			"low":     ledger.TaskXP("low"),
			"medium":  ledger.TaskXP("medium"),
			"high":    ledger.TaskXP("high"),
			"urgent":  ledger.TaskXP("urgent"),
			"default": ledger.TaskXP(""),
		},
		"achievement_count": c.l.Catalog().Len(),
	})
}
