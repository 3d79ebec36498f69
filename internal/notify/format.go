// Package notify delivers alerts: Telegram for people, the log for
// operators, and a fan-out that sends to both.
package notify

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"solana-token-watch/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// Format renders an alert as Telegram HTML.
func Format(a domain.Alert) string {
	switch a.Kind {
	case domain.AlertCoin:
		return formatCoin(a)
	case domain.AlertTrade:
		return formatTrade(a)
	case domain.AlertError:
		return formatError(a)
	default:
		return formatSystem(a)
	}
}

func formatCoin(a domain.Alert) string {
	marker := "🟢"
	change := 0.0
	if a.Change24h != nil {
		change = *a.Change24h
	}
	if change < 0 {
		marker = "🔴"
	}

	lines := []string{
		fmt.Sprintf("<b>🪙 %s</b>", html.EscapeString(a.Name)),
		"",
		fmt.Sprintf("💵 <b>Price:</b> $%s", price(a.Price)),
		fmt.Sprintf("%s <b>24h Change:</b> %.2f%%", marker, change),
		fmt.Sprintf("📊 <b>Total Volume:</b> %s", number(a.Volume24h)),
		fmt.Sprintf("💰 <b>Market Cap:</b> %s", number(a.MarketCap)),
		fmt.Sprintf("🔗 <b>Profile link:</b> %s", html.EscapeString(a.Link)),
		"",
		stamp("Updated: ", a.At),
	}
	if a.Feed != "" {
		lines = append([]string{fmt.Sprintf("<code>%s</code>", a.Feed)}, lines...)
	}
	return strings.Join(lines, "\n")
}

func formatTrade(a domain.Alert) string {
	ratio := "n/a"
	if a.VolumeRatio != nil {
		ratio = fmt.Sprintf("%.2f%%", *a.VolumeRatio*100)
	}
	return strings.Join([]string{
		fmt.Sprintf("🤖 <b>Trade Alert: %s</b>", a.Side),
		html.EscapeString(a.Name),
		fmt.Sprintf("💰 Price: %s", price(a.Price)),
		fmt.Sprintf("📝 Amount: %s", html.EscapeString(a.Amount)),
		fmt.Sprintf("📊 Volume/MCap Ratio: %s", ratio),
		fmt.Sprintf("🔗 %s", html.EscapeString(a.Link)),
	}, "\n")
}

func formatError(a domain.Alert) string {
	title := a.Title
	if title == "" {
		title = "Error Alert"
	}
	return strings.Join([]string{
		fmt.Sprintf("⚠️ <b>%s</b>", html.EscapeString(title)),
		"",
		html.EscapeString(a.Detail),
		"",
		stamp("", a.At),
	}, "\n")
}

func formatSystem(a domain.Alert) string {
	return strings.Join([]string{
		fmt.Sprintf("🔔 <b>%s</b>", html.EscapeString(a.Title)),
		"",
		html.EscapeString(a.Detail),
		"",
		stamp("", a.At),
	}, "\n")
}

// Plain renders an alert as a single log line.
func Plain(a domain.Alert) string {
	switch a.Kind {
	case domain.AlertCoin:
		return fmt.Sprintf("New coin: feed=%s name=%s price=%s link=%s", a.Feed, a.Name, price(a.Price), a.Link)
	case domain.AlertTrade:
		return fmt.Sprintf("Trade: feed=%s side=%s name=%s amount=%s link=%s", a.Feed, a.Side, a.Name, a.Amount, a.Link)
	default:
		return fmt.Sprintf("%s: feed=%s title=%q detail=%q", a.Kind, a.Feed, a.Title, a.Detail)
	}
}

func price(p *domain.Price) string {
	if p == nil {
		return "n/a"
	}
	return p.String()
}

func number(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func stamp(prefix string, at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("<i>🕒 %s%s</i>", prefix, at.UTC().Format(timeLayout))
}
