package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"waiver-trend-alerts/internal/detector"
)

const embedColorGreen = 0x2ecc71

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, alert detector.Alert) error
}

// DiscordOptions parameterise the webhook notifier.
type DiscordOptions struct {
	WebhookURL  string
	DryRun      bool
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Timeout     time.Duration
}

// DiscordNotifier 通过 Discord webhook 推送 embed 消息。未配置 webhook
// 或开启 dry-run 时进入抑制模式：内容只回显到日志，不发起任何网络请求。
type DiscordNotifier struct {
	opts       DiscordOptions
	suppressed bool
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier 构造 Discord 告警器。
func NewDiscordNotifier(opts DiscordOptions, logger zerolog.Logger) *DiscordNotifier {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &DiscordNotifier{
		opts:       opts,
		suppressed: opts.DryRun || opts.WebhookURL == "",
		client:     &http.Client{Timeout: opts.Timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Suppressed reports whether deliveries are echoed instead of sent.
func (n *DiscordNotifier) Suppressed() bool {
	return n.suppressed
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Notify 发送单条告警。抑制模式下永远成功；实时模式下 429 按
// Retry-After（缺失时指数退避）重试，其他失败同样退避，重试耗尽后返回错误。
func (n *DiscordNotifier) Notify(ctx context.Context, alert detector.Alert) error {
	title, description := RenderAlert(alert)

	if n.suppressed {
		n.logger.Info().
			Str("alert_id", alert.ID.String()).
			Str("title", title).
			Str("body", description).
			Msg("dry-run 告警（未发送）")
		return nil
	}

	payload := discordPayload{Embeds: []discordEmbed{{
		Title:       title,
		Description: description,
		Color:       embedColorGreen,
	}}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	backoff := n.opts.BackoffBase
	attempt := 0
	for {
		attempt++

		status, retryAfter, postErr := n.post(ctx, body)
		if postErr == nil && status >= 200 && status < 300 {
			n.logger.Info().
				Str("alert_id", alert.ID.String()).
				Str("player", alert.PlayerName).
				Str("kind", alert.Kind).
				Int("attempt", attempt).
				Msg("告警已发送 (Discord)")
			return nil
		}

		if attempt > n.opts.MaxRetries {
			if postErr != nil {
				return fmt.Errorf("discord delivery failed after %d attempts: %w", attempt, postErr)
			}
			return fmt.Errorf("discord delivery failed after %d attempts: status %d", attempt, status)
		}

		delay := backoff
		if status == http.StatusTooManyRequests && retryAfter > 0 {
			delay = retryAfter
		}
		backoff = backoff * 2
		if backoff > n.opts.BackoffCap {
			backoff = n.opts.BackoffCap
		}

		n.logger.Warn().
			Int("status", status).
			Err(postErr).
			Dur("delay", delay).
			Int("attempt", attempt).
			Msg("discord 投递失败，准备重试")

		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

func (n *DiscordNotifier) post(ctx context.Context, body []byte) (status int, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.opts.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, parseErr := strconv.ParseFloat(header, 64); parseErr == nil && secs > 0 {
			retryAfter = time.Duration(secs * float64(time.Second))
		}
	}

	return resp.StatusCode, retryAfter, nil
}

// sleepCtx waits for the delay unless the context is cancelled first, so a
// long retry sequence still participates in cooperative shutdown.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RenderAlert formats the human-readable title and body for one alert.
func RenderAlert(alert detector.Alert) (title, description string) {
	title = alert.PlayerName
	if alert.TeamPos != "" {
		title = fmt.Sprintf("%s (%s)", alert.PlayerName, alert.TeamPos)
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("Kind: %s\n", alert.Kind))
	builder.WriteString(fmt.Sprintf("Add Δ: %d (rate %s/min)\n", alert.AddDelta, alert.AddRate.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Drop Δ: %d (rate %s/min)", alert.DropDelta, alert.DropRate.StringFixed(2)))
	return title, builder.String()
}

var _ Notifier = (*DiscordNotifier)(nil)
