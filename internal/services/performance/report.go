package performance

import (
	"strings"
	"time"

	"OrbLab/internal/domain/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report renders metrics as the fixed markdown summary. Amounts are printed
// with English digit grouping.
func Report(m models.Metrics, symbol string, generatedAt time.Time) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString("# ORB Strategy Backtest Results\n\n")
	if symbol != "" {
		p.Fprintf(&b, "**Symbol**: %s\n\n", symbol)
	}

	b.WriteString("## Summary Statistics\n\n")
	p.Fprintf(&b, "- **Total Trades**: %d\n", m.TotalTrades)
	p.Fprintf(&b, "- **Win Rate**: %.1f%%\n", m.WinRate*100)
	p.Fprintf(&b, "- **Total Return**: %.2f%%\n", m.TotalReturnPct)
	p.Fprintf(&b, "- **Sharpe Ratio**: %.2f\n", m.SharpeRatio)
	p.Fprintf(&b, "- **Max Drawdown**: %.2f%%\n", m.MaxDrawdownPct)
	p.Fprintf(&b, "- **Profit Factor**: %.2f\n\n", m.ProfitFactor)

	b.WriteString("## Trade Analysis\n\n")
	p.Fprintf(&b, "- **Winning Trades**: %d\n", m.WinningTrades)
	p.Fprintf(&b, "- **Losing Trades**: %d\n", m.LosingTrades)
	p.Fprintf(&b, "- **Average Win**: $%.2f\n", m.AvgWin)
	p.Fprintf(&b, "- **Average Loss**: $%.2f\n", m.AvgLoss)
	p.Fprintf(&b, "- **Largest Win**: $%.2f\n", m.LargestWin)
	p.Fprintf(&b, "- **Largest Loss**: $%.2f\n\n", m.LargestLoss)

	b.WriteString("## Risk-Adjusted Returns\n\n")
	p.Fprintf(&b, "- **Average R-Multiple**: %.2f\n", m.AvgRMultiple)
	p.Fprintf(&b, "- **Sharpe Ratio**: %.2f\n\n", m.SharpeRatio)

	b.WriteString("## Strategy Metrics\n\n")
	p.Fprintf(&b, "- **Average Holding Time**: %.2f hours\n", m.AvgHoldingHours)
	p.Fprintf(&b, "- **Average OR Range**: $%.2f\n", m.AvgORRange)
	for _, r := range exitOrder {
		if n := m.ExitReasons[r]; n > 0 {
			p.Fprintf(&b, "- **Exits (%s)**: %d\n", r, n)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Capital\n\n")
	p.Fprintf(&b, "- **Initial Capital**: $%.0f\n", m.InitialCapital)
	p.Fprintf(&b, "- **Final Capital**: $%.0f\n", m.FinalCapital)
	p.Fprintf(&b, "- **Total P&L**: $%.2f\n\n", m.TotalPnL)

	b.WriteString("---\n\n")
	p.Fprintf(&b, "*Generated: %s*\n", generatedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

var exitOrder = []models.ExitReason{
	models.ExitTarget1, models.ExitTarget2, models.ExitTarget3,
	models.ExitStopLoss, models.ExitTimeStop, models.ExitEndOfData,
}
