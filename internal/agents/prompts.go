package agents

import (
	"fmt"
	"strings"

	"github.com/openbench/tradearena/internal/market"
	"github.com/openbench/tradearena/internal/portfolio"
)

const conservativeSystemPrompt = `You are %s, a conservative crypto trading agent competing in a benchmarked arena.
You protect capital first. You only trade when the evidence is strong, you size positions
small, and you hold through uncertainty. Your risk tolerance is %.1f on a 0-1 scale.`

const aggressiveSystemPrompt = `You are %s, an aggressive crypto trading agent competing in a benchmarked arena.
You hunt momentum and act decisively on developing moves. You accept drawdowns as the cost
of catching trends early. Your risk tolerance is %.1f on a 0-1 scale.`

const contrarianSystemPrompt = `You are %s, a contrarian crypto trading agent competing in a benchmarked arena.
You fade crowded trades: you look to buy fear and sell euphoria, and you distrust whatever
the majority is doing. Your risk tolerance is %.1f on a 0-1 scale.`

const defaultSystemPrompt = `You are %s, a crypto trading agent competing in a benchmarked arena.
You weigh evidence carefully and trade only with a clear edge. Your risk tolerance is %.1f
on a 0-1 scale.`

const decisionContract = `Respond with ONLY a JSON object in exactly this format, no other text:
{
  "action": "buy" | "sell" | "hold",
  "symbol": "one of the snapshot symbols, empty for hold",
  "quantity": <buy: USDC notional to spend, sell: units to sell, hold: 0>,
  "reasoning": "your full chain of reasoning, cite the evidence you used",
  "confidence": <0-100>,
  "intent": "momentum" | "value" | "hedging" | "rebalance" | "speculation",
  "sources": ["each data source you relied on"],
  "predictedOutcome": "what you expect to happen and by when"
}`

// SystemPrompt renders the persona for an agent's configured style
func SystemPrompt(cfg AgentConfig) string {
	var tpl string
	switch cfg.TradingStyle {
	case StyleConservative:
		tpl = conservativeSystemPrompt
	case StyleAggressive:
		tpl = aggressiveSystemPrompt
	case StyleContrarian:
		tpl = contrarianSystemPrompt
	default:
		tpl = defaultSystemPrompt
	}
	return fmt.Sprintf(tpl, cfg.Name, cfg.RiskTolerance)
}

// BuildDecisionPrompt assembles the per-round user prompt: market
// snapshot table, the agent's portfolio, optional technical and news
// blocks, and the strict response contract.
func BuildDecisionPrompt(cfg AgentConfig, snap *market.Snapshot, pf *portfolio.Context, technicals, news string) string {
	var b strings.Builder

	b.WriteString("It is a new trading round. Decide on at most one action.\n\n")
	b.WriteString(formatSnapshot(snap))
	b.WriteString("\n")
	b.WriteString(formatPortfolio(pf))

	if technicals != "" {
		b.WriteString("\n")
		b.WriteString(technicals)
	}
	if news != "" {
		b.WriteString("\n")
		b.WriteString(news)
	}

	if len(cfg.PreferredSymbols) > 0 {
		b.WriteString(fmt.Sprintf("\nYou have a standing preference for: %s.\n", strings.Join(cfg.PreferredSymbols, ", ")))
	}

	b.WriteString("\n")
	b.WriteString(decisionContract)
	return b.String()
}

func formatSnapshot(snap *market.Snapshot) string {
	if snap == nil || len(snap.Quotes) == 0 {
		return "MARKET SNAPSHOT: unavailable this round\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MARKET SNAPSHOT (captured %s):\n", snap.CapturedAt.Format("2006-01-02 15:04:05 UTC"))
	for _, q := range snap.Quotes {
		fmt.Fprintf(&b, "  %-6s $%.2f  24h %+.2f%%  volume $%.0f\n",
			q.Symbol, q.Price, q.Change24h*100, q.Volume24h)
	}
	return b.String()
}

func formatPortfolio(pf *portfolio.Context) string {
	if pf == nil {
		return "YOUR PORTFOLIO: unavailable this round\n"
	}

	var b strings.Builder
	b.WriteString("YOUR PORTFOLIO:\n")
	fmt.Fprintf(&b, "  Cash: $%.2f\n", pf.CashBalance)
	fmt.Fprintf(&b, "  Total value: $%.2f (P&L %+.2f%%)\n", pf.TotalValue, pf.TotalPnlPercent)
	if len(pf.Positions) == 0 {
		b.WriteString("  Positions: none\n")
		return b.String()
	}
	b.WriteString("  Positions:\n")
	for _, p := range pf.Positions {
		fmt.Fprintf(&b, "    %s: %.4f units @ avg $%.2f (now $%.2f, %+.2f%%)\n",
			p.Symbol, p.Quantity, p.AvgCost, p.CurrentPrice, p.UnrealizedPnlPercent)
	}
	return b.String()
}

// correctionPrompt asks for a resend after an unparseable reply
const correctionPrompt = `Your previous reply was not valid JSON and could not be parsed.
Resend your decision now as ONLY the JSON object, with no surrounding text or markdown.`
