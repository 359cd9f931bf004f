package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/ledger/config"
	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/testutil"
	"github.com/cppla/ledger/utils"
)

const serviceToken = "svc-token"

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "routes-test-secret")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	l := ledger.New(testutil.OpenTestDB(t), ledger.DefaultPolicy())
	cfg := config.AppConfig{
		GinMode:            "test",
		ServiceToken:       serviceToken,
		RateLimitPerMinute: 1000,
		LeaderboardSize:    10,
	}
	return SetupRouter(l, utils.NewHub(), cfg)
}

func bearer(t *testing.T, uid string, guilds, admins []string) http.Header {
	t.Helper()
	tok, err := utils.GenerateToken(uid, uid, guilds, admins, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h
}

func call(t *testing.T, r http.Handler, method, target string, header http.Header, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func serviceHeader() http.Header {
	h := http.Header{}
	h.Set("X-Service-Token", serviceToken)
	return h
}

func TestHealthAndNoRoute(t *testing.T) {
	r := newTestRouter(t)

	w, env := call(t, r, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK || env.Code != 0 {
		t.Fatalf("health: status=%d code=%d", w.Code, env.Code)
	}

	w, env = call(t, r, http.MethodGet, "/api/v1/nope", nil, nil)
	if w.Code != http.StatusNotFound || env.Code != 40400 {
		t.Fatalf("no route: status=%d code=%d", w.Code, env.Code)
	}
}

func TestRulesArePublic(t *testing.T) {
	r := newTestRouter(t)
	w, env := call(t, r, http.MethodGet, "/api/v1/config/rules", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var rules map[string]any
	if err := json.Unmarshal(env.Data, &rules); err != nil {
		t.Fatalf("decode rules: %v", err)
	}
	if _, ok := rules["daily_xp_cap"]; !ok {
		t.Fatalf("rules missing daily_xp_cap: %v", rules)
	}
}

func TestInternalAwardShowsUpOnAccount(t *testing.T) {
	r := newTestRouter(t)

	award := map[string]any{
		"owner_id":    "u1",
		"amount":      40,
		"category":    "tasks",
		"source_type": "task",
		"source_id":   "task-1",
	}
	w, _ := call(t, r, http.MethodPost, "/internal/awards/xp", nil, award)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("award without service token: status = %d", w.Code)
	}

	w, _ = call(t, r, http.MethodPost, "/internal/awards/xp", serviceHeader(), award)
	if w.Code != http.StatusOK {
		t.Fatalf("award: status = %d, body %s", w.Code, w.Body.String())
	}
	// Replay of the same source is absorbed.
	w, env := call(t, r, http.MethodPost, "/internal/awards/xp", serviceHeader(), award)
	if w.Code != http.StatusOK {
		t.Fatalf("replay: status = %d", w.Code)
	}
	var replay ledger.XPResult
	if err := json.Unmarshal(env.Data, &replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if !replay.Duplicate || replay.Applied != 0 {
		t.Fatalf("replay = %+v, want duplicate with nothing applied", replay)
	}

	w, env = call(t, r, http.MethodGet, "/api/v1/xp/me", bearer(t, "u1", nil, nil), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("xp/me: status = %d, body %s", w.Code, w.Body.String())
	}
	var me struct {
		Account struct {
			TotalXP int64 `json:"total_xp"`
			TasksXP int64 `json:"tasks_xp"`
		} `json:"account"`
	}
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode xp/me: %v", err)
	}
	if me.Account.TotalXP != 40 || me.Account.TasksXP != 40 {
		t.Fatalf("account = %+v, want 40 total and 40 tasks", me.Account)
	}
}

func TestInternalAwardRejectsZeroAmount(t *testing.T) {
	r := newTestRouter(t)
	w, env := call(t, r, http.MethodPost, "/internal/awards/points", serviceHeader(), map[string]any{
		"owner_id":    "u1",
		"amount":      0,
		"source_type": "task",
	})
	if w.Code != http.StatusBadRequest || env.Code != 40063 {
		t.Fatalf("status=%d code=%d, want 400/40063", w.Code, env.Code)
	}
}

func TestInternalRejectsUnkeyedInput(t *testing.T) {
	r := newTestRouter(t)

	w, env := call(t, r, http.MethodPost, "/internal/events", serviceHeader(), map[string]any{
		"kind":  "task_completed",
		"owner": map[string]any{"owner_kind": "user", "owner_id": "u1"},
		"title": "Ship it",
	})
	if w.Code != http.StatusBadRequest || env.Code != 40069 {
		t.Fatalf("event without source: status=%d code=%d, want 400/40069", w.Code, env.Code)
	}

	w, env = call(t, r, http.MethodPost, "/internal/awards/xp", serviceHeader(), map[string]any{
		"owner_id":    "u1",
		"amount":      10,
		"source_type": "task",
		"source_id":   strings.Repeat("x", 97),
	})
	if w.Code != http.StatusBadRequest || env.Code != 40072 {
		t.Fatalf("oversized source id: status=%d code=%d, want 400/40072", w.Code, env.Code)
	}
}

func TestRedeemWithoutBalance(t *testing.T) {
	r := newTestRouter(t)
	h := bearer(t, "u1", nil, nil)

	w, env := call(t, r, http.MethodPost, "/api/v1/rewards", h, map[string]any{
		"name": "Movie night",
		"cost": 300,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		Reward struct {
			ID string `json:"id"`
		} `json:"reward"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil || created.Reward.ID == "" {
		t.Fatalf("decode created reward: %v (%s)", err, env.Data)
	}

	w, env = call(t, r, http.MethodPost, "/api/v1/rewards/"+created.Reward.ID+"/redeem", h, nil)
	if w.Code != http.StatusBadRequest || env.Code != 40060 {
		t.Fatalf("redeem: status=%d code=%d, want 400/40060", w.Code, env.Code)
	}

	w, _ = call(t, r, http.MethodPost, "/internal/awards/points", serviceHeader(), map[string]any{
		"owner_id":    "u1",
		"amount":      300,
		"source_type": "task",
		"source_id":   "task-9",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("award points: status = %d, body %s", w.Code, w.Body.String())
	}

	w, _ = call(t, r, http.MethodPost, "/api/v1/rewards/"+created.Reward.ID+"/redeem", h, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("redeem after award: status = %d, body %s", w.Code, w.Body.String())
	}
	w, env = call(t, r, http.MethodPost, "/api/v1/rewards/"+created.Reward.ID+"/redeem", h, nil)
	if w.Code != http.StatusBadRequest && w.Code != http.StatusConflict {
		t.Fatalf("second redeem: status = %d, want a rejection", w.Code)
	}
}

func TestGuildRoutesEnforceMembership(t *testing.T) {
	r := newTestRouter(t)

	w, env := call(t, r, http.MethodGet, "/api/v1/guilds/g1/xp", bearer(t, "u1", nil, nil), nil)
	if w.Code != http.StatusForbidden || env.Code != 40301 {
		t.Fatalf("outsider: status=%d code=%d", w.Code, env.Code)
	}

	member := bearer(t, "u1", []string{"g1"}, nil)
	w, _ = call(t, r, http.MethodGet, "/api/v1/guilds/g1/xp", member, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("member read: status = %d, body %s", w.Code, w.Body.String())
	}

	reward := map[string]any{"name": "Raid night", "cost": 100}
	w, env = call(t, r, http.MethodPost, "/api/v1/guilds/g1/rewards", member, reward)
	if w.Code != http.StatusForbidden || env.Code != 40302 {
		t.Fatalf("member create: status=%d code=%d, want 403/40302", w.Code, env.Code)
	}

	admin := bearer(t, "u2", nil, []string{"g1"})
	w, _ = call(t, r, http.MethodPost, "/api/v1/guilds/g1/rewards", admin, reward)
	if w.Code != http.StatusCreated {
		t.Fatalf("admin create: status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	r := newTestRouter(t)
	w, _ := call(t, r, http.MethodGet, "/api/v1/points/me", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
