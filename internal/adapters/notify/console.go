package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Alerter escribiendo a stdout e imprime los reportes
// del scanner y de las órdenes propias.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Alert imprime el mensaje con hora. El markdown de Telegram se elimina.
func (c *Console) Alert(_ context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] %s\n", time.Now().Format("15:04:05"), stripMarkdown(msg))
	return nil
}

// PrintScanReport imprime el estado de cada mercado tras una pasada del scanner.
func (c *Console) PrintScanReport(r domain.ScanReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n[%s] redemption scan: %d positions, %d markets in %v\n",
		r.StartedAt.Format("15:04:05"), r.Positions, len(r.Markets), r.Duration.Truncate(time.Millisecond))

	if len(r.Markets) == 0 {
		fmt.Fprintln(c.out, "  No positions to check for redemption.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "State", "Payouts", "Index sets", "Tx", "Error")
	for i, m := range r.Markets {
		table.Append(
			fmt.Sprintf("%d", i+1),
			domain.TruncateTitle(m.Title, m.ConditionID, 40),
			string(m.State),
			payoutsLabel(m),
			indexSetsLabel(m.IndexSets),
			shortHash(m.TxRef),
			truncate(m.LastError, 40),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  unresolved:%d resolved:%d submitted:%d confirmed:%d error:%d\n",
		r.Count(domain.StateUnresolved),
		r.Count(domain.StateResolved),
		r.Count(domain.StateRedemptionSubmitted),
		r.Count(domain.StateRedemptionConfirmed),
		r.Count(domain.StateError),
	)
}

// PrintBotTrades imprime las últimas órdenes propias.
func (c *Console) PrintBotTrades(trades []domain.BotTrade) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n── BOT TRADES (%d) ──\n", len(trades))
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Side", "Outcome", "Price", "USDC", "Status", "Order")
	for _, t := range trades {
		table.Append(
			t.Timestamp.Local().Format("01-02 15:04:05"),
			string(t.Side),
			t.Outcome,
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("$%.2f", t.SizeUSDC),
			string(t.Status),
			truncate(t.OrderRef, 18),
		)
	}
	table.Render()
}

// --- helpers ---

func payoutsLabel(m domain.Resolution) string {
	if len(m.Payouts) == 0 {
		return "-"
	}
	parts := make([]string, len(m.Payouts))
	for i, p := range m.Payouts {
		if p == nil {
			parts[i] = "?"
			continue
		}
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func indexSetsLabel(sets []domain.IndexSet) string {
	if len(sets) == 0 {
		return "-"
	}
	parts := make([]string, len(sets))
	for i, s := range sets {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func shortHash(h string) string {
	if h == "" {
		return "-"
	}
	return domain.ShortAddr(h)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// stripMarkdown quita los marcadores de Markdown (v1) que usa Telegram.
func stripMarkdown(s string) string {
	return strings.NewReplacer("*", "", "_", "", "`", "").Replace(s)
}
