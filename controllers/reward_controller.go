package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/models"
	"github.com/cppla/ledger/utils"
)

// RewardController manages reward shops and redemptions. Every handler works
// on the caller's personal shop, or on the guild shop when mounted under
// /guilds/:guild.
type RewardController struct {
	l *ledger.Ledger
}

// NewRewardController creates a new RewardController.
func NewRewardController(l *ledger.Ledger) *RewardController {
	return &RewardController{l: l}
}

// List returns the shop with the caller's eligibility per reward.
func (r *RewardController) List(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	uid, _ := getUserID(ctx)
	includeInactive := ctx.Query("include_inactive") == "true"
	views, err := r.l.ListRewards(ctx.Request.Context(), owner, uid, includeInactive)
	if err != nil {
		respondLedgerError(ctx, err, 50070, "failed to list rewards")
		return
	}
	utils.Success(ctx, gin.H{"rewards": views})
}

// Create adds a reward to the shop.
func (r *RewardController) Create(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var in ledger.RewardInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40070, "invalid request payload")
		return
	}
	sanitizeReward(&in)
	uid, _ := getUserID(ctx)
	reward, err := r.l.CreateReward(ctx.Request.Context(), owner, uid, in)
	if err != nil {
		respondLedgerError(ctx, err, 50071, "failed to create reward")
		return
	}
	utils.Created(ctx, gin.H{"reward": reward})
}

// Update edits the fields present in the body.
func (r *RewardController) Update(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var in ledger.RewardInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40070, "invalid request payload")
		return
	}
	sanitizeReward(&in)
	reward, err := r.l.UpdateReward(ctx.Request.Context(), owner, ctx.Param("id"), in)
	if err != nil {
		respondLedgerError(ctx, err, 50072, "failed to update reward")
		return
	}
	utils.Success(ctx, gin.H{"reward": reward})
}

// Delete deactivates the reward; history keeps its reference.
func (r *RewardController) Delete(ctx *gin.Context) {
	owner, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if err := r.l.DeactivateReward(ctx.Request.Context(), owner, ctx.Param("id")); err != nil {
		respondLedgerError(ctx, err, 50073, "failed to delete reward")
		return
	}
	utils.Success(ctx, gin.H{"deleted": true})
}

// Redeem spends the shop owner's points on a reward for the caller.
func (r *RewardController) Redeem(ctx *gin.Context) {
	shop, ok := ownerFromRoute(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	uid, _ := getUserID(ctx)
	res, err := r.l.RedeemFrom(ctx.Request.Context(), shop, uid, ctx.Param("id"))
	if err != nil {
		respondLedgerError(ctx, err, 50074, "failed to redeem reward")
		return
	}
	utils.Success(ctx, gin.H{
		"redemption":  res.Redemption,
		"new_balance": res.Balance,
	})
}

// History lists the caller's own redemptions across all shops.
func (r *RewardController) History(ctx *gin.Context) {
	uid, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	items, total, err := r.l.Redemptions(ctx.Request.Context(), ledger.RedemptionFilter{RedeemerID: uid}, page, size)
	if err != nil {
		respondLedgerError(ctx, err, 50075, "failed to load redemptions")
		return
	}
	utils.SuccessPage(ctx, items, total, page, size)
}

// GuildRedemptions lists redemptions paid by the guild treasury.
func (r *RewardController) GuildRedemptions(ctx *gin.Context) {
	status := ctx.Query("status")
	if status != "" && status != models.RedemptionPending && status != models.RedemptionFulfilled {
		utils.Error(ctx, http.StatusBadRequest, 40071, "invalid status")
		return
	}
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	f := ledger.RedemptionFilter{Payer: ledger.Guild(ctx.Param("guild")), Status: status}
	items, total, err := r.l.Redemptions(ctx.Request.Context(), f, page, size)
	if err != nil {
		respondLedgerError(ctx, err, 50075, "failed to load redemptions")
		return
	}
	utils.SuccessPage(ctx, items, total, page, size)
}

// Fulfill marks a pending guild redemption as delivered.
func (r *RewardController) Fulfill(ctx *gin.Context) {
	var req struct {
		Notes string `json:"notes"`
	}
	// body is optional
	_ = ctx.ShouldBindJSON(&req)
	uid, _ := getUserID(ctx)
	notes := utils.SanitizeText(req.Notes)
	red, err := r.l.FulfillRedemption(ctx.Request.Context(), ledger.Guild(ctx.Param("guild")), ctx.Param("id"), uid, notes)
	if err != nil {
		respondLedgerError(ctx, err, 50076, "failed to fulfil redemption")
		return
	}
	utils.Success(ctx, gin.H{"redemption": red})
}

func sanitizeReward(in *ledger.RewardInput) {
	clean := func(p **string, html bool) {
		if *p == nil {
			return
		}
		v := strings.TrimSpace(**p)
		if html {
			v = utils.Sanitize(v)
		} else {
			v = utils.SanitizeText(v)
		}
		*p = &v
	}
	clean(&in.Name, false)
	clean(&in.Description, true)
	clean(&in.Icon, false)
}
