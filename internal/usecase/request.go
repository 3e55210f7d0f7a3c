package usecase

import (
	"sort"
	"strings"
	"time"

	"OrbLab/internal/domain/models"
	domrepo "OrbLab/internal/domain/repository"
	"OrbLab/pkg/util"
)

// RunParamsFrom turns an API or Kafka request into RunParams on top of base.
// Dates without a zone are read in the strategy timezone.
func RunParamsFrom(req models.RunRequest, base models.Params) (RunParams, error) {
	p, err := ApplyOverrides(base, req.Overrides)
	if err != nil {
		return RunParams{}, err
	}
	if req.Trend != nil {
		p.UseTrendFilter = *req.Trend
	}
	from, to, err := parseRange(req.From, req.To, base)
	if err != nil {
		return RunParams{}, err
	}
	return RunParams{
		RunID:     req.RunID,
		Symbol:    strings.ToUpper(strings.TrimSpace(req.Symbol)),
		From:      from,
		To:        to,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		Params:    p,
	}, nil
}

// ApplyOverrides returns base with each sweepable key replaced. Keys are
// applied in sorted order so the result does not depend on map iteration.
func ApplyOverrides(base models.Params, overrides map[string]float64) (models.Params, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p := base
	for _, k := range keys {
		next, err := p.With(k, overrides[k])
		if err != nil {
			return base, err
		}
		p = next
	}
	return p, nil
}

func parseRange(from, to string, base models.Params) (time.Time, time.Time, error) {
	sch, err := base.Schedule()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	f, t, err := util.ParseRange(from, to, sch.Loc)
	if err != nil {
		return time.Time{}, time.Time{}, &models.ConfigurationError{Field: "from/to", Reason: err.Error()}
	}
	return f, t, nil
}

// SweepParamsFrom builds grid search parameters from an API request.
func SweepParamsFrom(req models.SweepRequest, base models.Params) (SweepParams, error) {
	from, to, err := parseRange(req.From, req.To, base)
	if err != nil {
		return SweepParams{}, err
	}
	return SweepParams{
		Symbol:    strings.ToUpper(strings.TrimSpace(req.Symbol)),
		From:      from,
		To:        to,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		Base:      base,
		Grid:      req.Grid,
		Workers:   req.Workers,
		Top:       req.Top,
	}, nil
}

// WalkForwardParamsFrom builds walk-forward parameters from an API request.
func WalkForwardParamsFrom(req models.WalkForwardRequest, base models.Params) (WalkForwardParams, error) {
	sp, err := SweepParamsFrom(models.SweepRequest{
		Symbol:  req.Symbol,
		From:    req.From,
		To:      req.To,
		TF:      req.TF,
		Grid:    req.Grid,
		Workers: req.Workers,
	}, base)
	if err != nil {
		return WalkForwardParams{}, err
	}
	return WalkForwardParams{SweepParams: sp, TrainDays: req.TrainDays, TestDays: req.TestDays}, nil
}
