package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arblog/internal/database"
	"arblog/internal/model"
)

// Hop is one swap of a cycle.
type Hop struct {
	From   string
	To     string
	Router string
}

// Cycle is a fully evaluated triangular arbitrage cycle, as handed over by the
// evaluator once it knows the outcome.
type Cycle struct {
	BaseToken   string
	Hops        []Hop
	StartAmount decimal.Decimal
	EndAmount   decimal.Decimal
	Executed    bool
	// At defaults to the time the row is written.
	At time.Time
}

// ErrBrokenCycle is returned when consecutive hops do not connect.
var ErrBrokenCycle = errors.New("hops do not form a closed cycle")

// Recorder turns evaluated cycles into attempt records and appends them to the log.
type Recorder struct {
	logger *slog.Logger
	repo   database.Repository
}

// NewRecorder creates a new instance of the Recorder.
func NewRecorder(logger *slog.Logger, repo database.Repository) *Recorder {
	return &Recorder{
		logger: logger,
		repo:   repo,
	}
}

// RecordCycle appends one record describing the cycle and returns its identifier.
func (r *Recorder) RecordCycle(ctx context.Context, c Cycle) (int64, error) {
	attempt, err := AttemptFromCycle(c)
	if err != nil {
		r.logger.Warn("Recorder: rejected cycle", "baseToken", c.BaseToken, "error", err)
		return 0, err
	}

	id, err := r.repo.Append(ctx, attempt)
	if err != nil {
		r.logger.Error("Recorder: failed to log arbitrage attempt", "path", attempt.Path, "error", err)
		return 0, err
	}

	r.logger.Info("Recorder: arbitrage attempt logged",
		"id", id,
		"path", attempt.Path,
		"routers", attempt.Routers,
		"startAmountUSDT", attempt.StartAmountUSDT.Decimal.String(),
		"profitUSDT", attempt.ProfitUSDT.Decimal.String(),
		"profitPercentage", attempt.ProfitPercentage.Decimal.String(),
		"executed", attempt.Executed,
	)
	return id, nil
}

// AttemptFromCycle builds the record for a cycle: the path lists every token
// visited, routers list one entry per hop, and profit is end minus start.
func AttemptFromCycle(c Cycle) (model.ArbitrageAttempt, error) {
	if len(c.Hops) == 0 {
		return model.ArbitrageAttempt{}, fmt.Errorf("%w: no hops", ErrBrokenCycle)
	}

	tokens := make([]string, 0, len(c.Hops)+1)
	routers := make([]string, 0, len(c.Hops))
	tokens = append(tokens, c.Hops[0].From)
	for i, hop := range c.Hops {
		if i > 0 && !strings.EqualFold(c.Hops[i-1].To, hop.From) {
			return model.ArbitrageAttempt{}, fmt.Errorf("%w: hop %d starts at %s but hop %d ends at %s",
				ErrBrokenCycle, i+1, hop.From, i, c.Hops[i-1].To)
		}
		tokens = append(tokens, hop.To)
		routers = append(routers, hop.Router)
	}

	base := c.BaseToken
	if base == "" {
		base = tokens[0]
	}

	profit := c.EndAmount.Sub(c.StartAmount)
	attempt := model.ArbitrageAttempt{
		Timestamp:       c.At,
		StartAmountUSDT: model.Amount(c.StartAmount),
		EndAmountUSDT:   model.Amount(c.EndAmount),
		ProfitUSDT:      model.Amount(profit),
		BaseToken:       base,
		Path:            model.FormatPath(tokens),
		Routers:         strings.Join(routers, model.RouterSeparator),
		Executed:        c.Executed,
	}
	if c.StartAmount.IsPositive() {
		attempt.ProfitPercentage = model.Amount(profit.Div(c.StartAmount).Mul(decimal.NewFromInt(100)).Round(6))
	}
	return attempt, nil
}
