package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"waiver-trend-alerts/internal/detector"
)

func testAlert() detector.Alert {
	return detector.Alert{
		ID:         uuid.New(),
		PlayerName: "Jordan Mason",
		TeamPos:    "SF - RB",
		AddDelta:   60,
		DropDelta:  2,
		AddRate:    decimal.NewFromInt(10),
		DropRate:   decimal.NewFromFloat(0.33),
		Kind:       detector.KindAdd,
		Observed:   time.Now().UTC(),
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestDiscordNotifierSuppressedNoNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("抑制模式不应发起任何网络请求")
	}))
	defer srv.Close()

	// Dry-run forced despite a configured webhook.
	n := NewDiscordNotifier(DiscordOptions{WebhookURL: srv.URL, DryRun: true}, testLogger())
	if !n.Suppressed() {
		t.Fatal("dry-run 应进入抑制模式")
	}
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("抑制模式投递不应报错: %v", err)
	}

	// Missing webhook suppresses regardless of dry-run.
	n = NewDiscordNotifier(DiscordOptions{WebhookURL: "", DryRun: false}, testLogger())
	if !n.Suppressed() {
		t.Fatal("未配置 webhook 应进入抑制模式")
	}
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("抑制模式投递不应报错: %v", err)
	}
}

func TestDiscordNotifierSuccess(t *testing.T) {
	var received struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(DiscordOptions{WebhookURL: srv.URL}, testLogger())
	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Discord Notify 应成功: %v", err)
	}

	if len(received.Embeds) != 1 {
		t.Fatalf("应收到 1 个 embed, 实际 %d", len(received.Embeds))
	}
	if !strings.Contains(received.Embeds[0].Title, "Jordan Mason") {
		t.Fatalf("标题应包含球员名: %q", received.Embeds[0].Title)
	}
	if !strings.Contains(received.Embeds[0].Description, "Kind: add") {
		t.Fatalf("正文应包含告警类型: %q", received.Embeds[0].Description)
	}
}

func TestDiscordNotifierRateLimitRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(DiscordOptions{
		WebhookURL:  srv.URL,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}, testLogger())

	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("429 后重试应成功: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("期望 2 次请求, 实际 %d", got)
	}
}

func TestDiscordNotifierRetryBound(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(DiscordOptions{
		WebhookURL:  srv.URL,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}, testLogger())

	err := n.Notify(context.Background(), testAlert())
	if err == nil {
		t.Fatal("持续失败应返回错误")
	}
	// 1 initial attempt + exactly MaxRetries additional ones.
	if got := attempts.Load(); got != 4 {
		t.Fatalf("期望 4 次请求, 实际 %d", got)
	}
}

func TestDiscordNotifierCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(DiscordOptions{
		WebhookURL:  srv.URL,
		MaxRetries:  5,
		BackoffBase: time.Hour,
		BackoffCap:  time.Hour,
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := n.Notify(ctx, testAlert())
	if err == nil {
		t.Fatal("取消后应返回错误")
	}
	if time.Since(start) > time.Second {
		t.Fatal("退避等待应响应取消")
	}
}

func TestRenderAlert(t *testing.T) {
	title, body := RenderAlert(testAlert())
	if title != "Jordan Mason (SF - RB)" {
		t.Fatalf("标题格式不正确: %q", title)
	}
	for _, want := range []string{"Kind: add", "Add Δ: 60", "Drop Δ: 2", "10.00/min"} {
		if !strings.Contains(body, want) {
			t.Fatalf("正文缺少 %q: %q", want, body)
		}
	}

	plain := testAlert()
	plain.TeamPos = ""
	title, _ = RenderAlert(plain)
	if title != "Jordan Mason" {
		t.Fatalf("无 team/pos 时标题应只含球员名: %q", title)
	}
}
