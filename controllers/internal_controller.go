package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/models"
	"github.com/cppla/ledger/utils"
)

// InternalController is the service-to-service API used by the task, habit,
// goal and guild services.
type InternalController struct {
	l *ledger.Ledger
}

// NewInternalController creates a new InternalController.
func NewInternalController(l *ledger.Ledger) *InternalController {
	return &InternalController{l: l}
}

type awardRequest struct {
	OwnerID     string           `json:"owner_id" binding:"required"`
	OwnerKind   models.OwnerKind `json:"owner_kind"`
	Amount      int64            `json:"amount"`
	Category    string           `json:"category"`
	SourceType  string           `json:"source_type"`
	SourceID    *string          `json:"source_id"`
	Description string           `json:"description"`
	ActorID     string           `json:"actor_id"`
	// Multiplier only applies to points awards.
	Multiplier *decimal.Decimal `json:"multiplier"`
}

func (a awardRequest) owner() ledger.Owner {
	kind := a.OwnerKind
	if kind == "" {
		kind = models.OwnerUser
	}
	return ledger.Owner{Kind: kind, ID: strings.TrimSpace(a.OwnerID)}
}

// AwardXP credits raw XP.
func (i *InternalController) AwardXP(ctx *gin.Context) {
	var req awardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}
	res, err := i.l.AwardXP(ctx.Request.Context(), ledger.XPAward{
		Owner:       req.owner(),
		Amount:      req.Amount,
		Category:    models.Category(req.Category),
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		Description: req.Description,
		ActorID:     req.ActorID,
	})
	if err != nil {
		respondLedgerError(ctx, err, 50080, "failed to award xp")
		return
	}
	utils.Success(ctx, res)
}

// AwardPoints credits raw points, optionally boosted by a multiplier.
func (i *InternalController) AwardPoints(ctx *gin.Context) {
	var req awardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}
	award := ledger.PointsAward{
		Owner:       req.owner(),
		BaseAmount:  req.Amount,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		Description: req.Description,
		ActorID:     req.ActorID,
	}
	if req.Multiplier != nil {
		award.Multiplier = *req.Multiplier
	}
	res, err := i.l.AwardPoints(ctx.Request.Context(), award)
	if err != nil {
		respondLedgerError(ctx, err, 50081, "failed to award points")
		return
	}
	utils.Success(ctx, res)
}

// Event dispatches a collaborator event to its trigger.
func (i *InternalController) Event(ctx *gin.Context) {
	var evt ledger.Event
	if err := ctx.ShouldBindJSON(&evt); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}
	out, err := i.l.HandleEvent(ctx.Request.Context(), evt)
	if err != nil {
		respondLedgerError(ctx, err, 50082, "failed to handle event")
		return
	}
	utils.Success(ctx, out)
}

// Stats stores collaborator counters and returns newly unlocked achievements.
func (i *InternalController) Stats(ctx *gin.Context) {
	var in ledger.OwnerStats
	if err := ctx.ShouldBindJSON(&in); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}
	owner := ledger.Owner{Kind: models.OwnerKind(ctx.Param("kind")), ID: ctx.Param("id")}
	unlocked, err := i.l.UpdateOwnerStats(ctx.Request.Context(), owner, in)
	if err != nil {
		respondLedgerError(ctx, err, 50083, "failed to update stats")
		return
	}
	if unlocked == nil {
		unlocked = []string{}
	}
	utils.Success(ctx, gin.H{"unlocked": unlocked})
}

// RevokeToken rejects a user token until it expires, on logout.
func (i *InternalController) RevokeToken(ctx *gin.Context) {
	var req struct {
		Token     string `json:"token" binding:"required"`
		ExpiresAt int64  `json:"expires_at" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}
	utils.RevokeToken(req.Token, time.Unix(req.ExpiresAt, 0))
	utils.Success(ctx, gin.H{"revoked": true})
}
