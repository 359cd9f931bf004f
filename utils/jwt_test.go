package utils

import (
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "utils-test-secret")
	os.Exit(m.Run())
}

func TestTokenRoundTripCarriesGuilds(t *testing.T) {
	tok, err := GenerateToken("u1", "alice", []string{"g1", "g2"}, []string{"g2"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" {
		t.Errorf("claims = %+v", claims)
	}
	if !claims.InGuild("g1") || claims.AdminOf("g1") || !claims.AdminOf("g2") || claims.InGuild("g3") {
		t.Errorf("guild checks wrong for %+v", claims)
	}
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	expired, err := GenerateToken("u1", "alice", nil, nil, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(expired); err == nil {
		t.Error("expired token accepted")
	}
	if _, err := ParseToken("not.a.jwt"); err == nil {
		t.Error("garbage accepted")
	}
	anon, _ := GenerateToken("", "ghost", nil, nil, time.Hour)
	if _, err := ParseToken(anon); err == nil {
		t.Error("token without user_id accepted")
	}
}
