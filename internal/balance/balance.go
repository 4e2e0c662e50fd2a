// Package balance computes period balance rollups and daily balance
// trajectories for an account. Deposits are transactions reaching the
// account through the TO relationship, withdrawals through FROM; the signs
// applied here are the only place direction is turned into arithmetic.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/period"
)

// Trajectory window around the current period start, in days.
const (
	TrajectoryLookback  = 14
	TrajectoryLookahead = 70
)

// Totals is one balance rollup. Cleared and Pending are deposit-minus-
// withdrawal deltas of their sub-populations; Total is deposits minus
// withdrawals, with the current period additionally carrying the prior
// total forward.
type Totals struct {
	Deposits    float64 `json:"deposits"`
	Withdrawals float64 `json:"withdrawals"`
	Cleared     float64 `json:"cleared"`
	Pending     float64 `json:"pending"`
	Total       float64 `json:"total"`
}

// Balances pairs the prior-period carry rollup with the current period.
type Balances struct {
	Prior   Totals `json:"prior"`
	Current Totals `json:"current"`
}

// DailyPoint is one day of the balance trajectory. Deposits and Withdrawals
// are cumulative through the day; Balance is their difference. The
// trajectory runs across period boundaries without resetting.
type DailyPoint struct {
	Date        time.Time `json:"date"`
	Deposits    float64   `json:"deposits"`
	Withdrawals float64   `json:"withdrawals"`
	Balance     float64   `json:"balance"`
}

// Aggregator answers balance questions for one account over one session.
type Aggregator struct {
	sess      graph.Session
	accountID string
}

// New creates an aggregator for the account with the given identifier.
func New(sess graph.Session, accountID string) *Aggregator {
	return &Aggregator{sess: sess, accountID: accountID}
}

// Balances computes the prior carry totals and the current period totals for
// the period described by dates.
func (a *Aggregator) Balances(ctx context.Context, dates period.Dates) (Balances, error) {
	prior, err := a.totals(ctx, []graph.Cond{
		{Property: "date", Op: graph.OpLt, Value: graph.DateValue(dates.Current)},
	})
	if err != nil {
		return Balances{}, fmt.Errorf("prior totals: %w", err)
	}

	current, err := a.totals(ctx, []graph.Cond{
		{Property: "date", Op: graph.OpGte, Value: graph.DateValue(dates.Current)},
		{Property: "date", Op: graph.OpLt, Value: graph.DateValue(dates.Next)},
	})
	if err != nil {
		return Balances{}, fmt.Errorf("current totals: %w", err)
	}

	// The current total is a running balance, not an isolated period delta.
	current.Total = round2(decimal.NewFromFloat(current.Deposits).
		Sub(decimal.NewFromFloat(current.Withdrawals)).
		Add(decimal.NewFromFloat(prior.Total)))

	return Balances{Prior: prior, Current: current}, nil
}

// totals computes one rollup over the transactions matching the date window.
func (a *Aggregator) totals(ctx context.Context, window []graph.Cond) (Totals, error) {
	cleared := graph.Cond{Property: "cleared", Op: graph.OpEq, Value: true}
	uncleared := graph.Cond{Property: "cleared", Op: graph.OpEq, Value: false}
	scheduled := graph.Cond{Property: "scheduled", Op: graph.OpEq, Value: true}

	deposits, err := a.sum(ctx, graph.RelTo, window)
	if err != nil {
		return Totals{}, err
	}
	withdrawals, err := a.sum(ctx, graph.RelFrom, window)
	if err != nil {
		return Totals{}, err
	}
	clearedDep, err := a.sum(ctx, graph.RelTo, append(window[:len(window):len(window)], cleared))
	if err != nil {
		return Totals{}, err
	}
	clearedWd, err := a.sum(ctx, graph.RelFrom, append(window[:len(window):len(window)], cleared))
	if err != nil {
		return Totals{}, err
	}
	pendingDep, err := a.sum(ctx, graph.RelTo, append(window[:len(window):len(window)], uncleared, scheduled))
	if err != nil {
		return Totals{}, err
	}
	pendingWd, err := a.sum(ctx, graph.RelFrom, append(window[:len(window):len(window)], uncleared, scheduled))
	if err != nil {
		return Totals{}, err
	}

	return Totals{
		Deposits:    round2(deposits),
		Withdrawals: round2(withdrawals),
		Cleared:     round2(clearedDep.Sub(clearedWd)),
		Pending:     round2(pendingDep.Sub(pendingWd)),
		Total:       round2(deposits.Sub(withdrawals)),
	}, nil
}

// Daily computes the balance trajectory for the fixed window around the
// current period start: one point per calendar day, cumulative across the
// whole window and seeded with all activity before it.
func (a *Aggregator) Daily(ctx context.Context, dates period.Dates) ([]DailyPoint, error) {
	windowStart := dates.Current.AddDate(0, 0, -TrajectoryLookback)
	windowEnd := dates.Current.AddDate(0, 0, TrajectoryLookahead)

	before := []graph.Cond{
		{Property: "date", Op: graph.OpLt, Value: graph.DateValue(windowStart)},
	}
	seedDep, err := a.sum(ctx, graph.RelTo, before)
	if err != nil {
		return nil, fmt.Errorf("seed deposits: %w", err)
	}
	seedWd, err := a.sum(ctx, graph.RelFrom, before)
	if err != nil {
		return nil, fmt.Errorf("seed withdrawals: %w", err)
	}

	within := []graph.Cond{
		{Property: "date", Op: graph.OpGte, Value: graph.DateValue(windowStart)},
		{Property: "date", Op: graph.OpLte, Value: graph.DateValue(windowEnd)},
	}
	depByDay, err := a.amountsByDay(ctx, graph.RelTo, within)
	if err != nil {
		return nil, fmt.Errorf("window deposits: %w", err)
	}
	wdByDay, err := a.amountsByDay(ctx, graph.RelFrom, within)
	if err != nil {
		return nil, fmt.Errorf("window withdrawals: %w", err)
	}

	var points []DailyPoint
	dep, wd := seedDep, seedWd
	for day := windowStart; !day.After(windowEnd); day = day.AddDate(0, 0, 1) {
		key := graph.DateValue(day)
		dep = dep.Add(depByDay[key])
		wd = wd.Add(wdByDay[key])
		points = append(points, DailyPoint{
			Date:        day,
			Deposits:    round2(dep),
			Withdrawals: round2(wd),
			Balance:     round2(dep.Sub(wd)),
		})
	}
	return points, nil
}

// sum aggregates transaction amounts on one relationship side of the
// account. A null aggregate is a valid empty state and sums to zero.
func (a *Aggregator) sum(ctx context.Context, side string, where []graph.Cond) (decimal.Decimal, error) {
	total, ok, err := a.sess.AggregateSum(ctx, a.query(side, where), "amount")
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	return decimal.NewFromFloat(total).Round(2), nil
}

// amountsByDay fetches the matching transactions and folds their amounts
// into per-day sums keyed by stored date.
func (a *Aggregator) amountsByDay(ctx context.Context, side string, where []graph.Cond) (map[string]decimal.Decimal, error) {
	records, err := a.sess.Find(ctx, a.query(side, where))
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]decimal.Decimal, len(records))
	for _, rec := range records {
		date, err := rec.String("date")
		if err != nil {
			return nil, err
		}
		amount, err := rec.Float("amount")
		if err != nil {
			return nil, err
		}
		byDay[date] = byDay[date].Add(decimal.NewFromFloat(amount))
	}
	return byDay, nil
}

func (a *Aggregator) query(side string, where []graph.Cond) graph.Query {
	return graph.Query{
		Node: graph.Node{Label: graph.LabelTransaction},
		Rels: []graph.Rel{{
			Type:      side,
			Direction: graph.Outgoing,
			Peer:      graph.Node{Label: graph.LabelAccount, Props: graph.Props{"uuid": a.accountID}},
		}},
		Where: where,
	}
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
