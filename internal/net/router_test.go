package net

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	server "bridge-and-breach/server"
	"bridge-and-breach/server/internal/config"
	"bridge-and-breach/server/internal/game"
	"bridge-and-breach/server/internal/store"
)

func newTestDeps(t *testing.T) (Deps, store.Store) {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	if err := game.SeedShip(ctx, st); err != nil {
		t.Fatalf("seed ship: %v", err)
	}
	if err := game.SeedMissions(ctx, st); err != nil {
		t.Fatalf("seed missions: %v", err)
	}

	cfg := config.Default().Game
	logger := zap.NewNop()
	rank := game.NewRankEngine(st, logger, cfg)
	auth := game.NewAuthCoordinator(st, logger, cfg)
	classifier := game.NewClassifier(st, nil, logger, cfg)
	leak := game.NewLeakScheduler(st, logger, cfg, rank, nil)
	processor := game.NewProcessor(st, classifier, auth, rank, leak, logger, cfg)
	hub := server.NewHub(st, processor, leak, logger)
	leak.SetAnnouncer(hub)

	return Deps{Hub: hub, Store: st, Rank: rank, Leak: leak, Logger: logger}, st
}

func TestHealthz(t *testing.T) {
	deps, _ := newTestDeps(t)
	ts := httptest.NewServer(NewRouter(deps))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatusSnapshot(t *testing.T) {
	deps, _ := newTestDeps(t)
	ts := httptest.NewServer(NewRouter(deps))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var payload statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("expected ok status, got %q", payload.Status)
	}
	if payload.Systems.Shields.Level != 100 {
		t.Fatalf("expected seeded shields at 100, got %d", payload.Systems.Shields.Level)
	}
	if payload.Leak.Active {
		t.Fatalf("expected no active leak at boot")
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	deps, _ := newTestDeps(t)
	ts := httptest.NewServer(NewRouter(deps))
	defer ts.Close()

	ctx := context.Background()
	if _, err := deps.Rank.AwardXP(ctx, "vex", 40); err != nil {
		t.Fatalf("award: %v", err)
	}
	if _, err := deps.Rank.AwardXP(ctx, "marn", 90); err != nil {
		t.Fatalf("award: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/leaderboard?n=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Officers []game.LeaderboardEntry `json:"officers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Officers) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(payload.Officers))
	}
	if payload.Officers[0].OfficerID != "marn" || payload.Officers[0].XP != 90 {
		t.Fatalf("unexpected top entry %+v", payload.Officers[0])
	}
}

func TestLeaderboardRejectsBadLimit(t *testing.T) {
	deps, _ := newTestDeps(t)
	ts := httptest.NewServer(NewRouter(deps))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/leaderboard?n=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSocketHandshakeWithLocationToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	ts := httptest.NewServer(NewRouter(deps))
	defer ts.Close()

	token := base64.StdEncoding.EncodeToString([]byte("Engineering"))
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?officer=vex&location=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome struct {
		Type     string `json:"type"`
		Location string `json:"location"`
	}
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.Type != "welcome" {
		t.Fatalf("expected welcome, got %q", welcome.Type)
	}
	if welcome.Location != "Engineering" {
		t.Fatalf("expected Engineering anchor, got %q", welcome.Location)
	}
}

func TestDecodeLocation(t *testing.T) {
	cases := []struct {
		token string
		want  game.Location
	}{
		{"", game.LocationBridge},
		{"%%%not-base64", game.LocationBridge},
		{base64.StdEncoding.EncodeToString([]byte("Sickbay")), game.LocationSickbay},
		{base64.StdEncoding.EncodeToString([]byte("Cargo Bay")), game.LocationCargoBay},
		{base64.StdEncoding.EncodeToString([]byte("Ten Forward")), game.LocationBridge},
	}
	for _, tc := range cases {
		if got := decodeLocation(tc.token); got != tc.want {
			t.Fatalf("decodeLocation(%q) = %q, want %q", tc.token, got, tc.want)
		}
	}
}
