// pkg/normalizer/filter.go
package normalizer

import (
	"math"

	"go.uber.org/zap"

	"github.com/David-Botos/user-normalizer/pkg/model"
	"github.com/David-Botos/user-normalizer/pkg/stats"
)

// impute fills missing age, income and credit_score with the batch median of
// the present values. A column with no present values stays missing.
func (n *RecordNormalizer) impute(rows []*row, report *model.BatchReport) {
	columns := []struct {
		name string
		get  func(*row) *float64
	}{
		{"age", func(r *row) *float64 { return &r.age }},
		{"income", func(r *row) *float64 { return &r.income }},
		{"credit_score", func(r *row) *float64 { return &r.credit }},
	}

	for _, col := range columns {
		values := make([]float64, len(rows))
		for i, r := range rows {
			values[i] = *col.get(r)
		}

		median, err := stats.Median(values)
		if err != nil {
			continue
		}

		for _, r := range rows {
			v := col.get(r)
			if !math.IsNaN(*v) {
				continue
			}
			*v = median
			report.Imputed[col.name]++
			report.AddOperation(r.ctx.Operation(col.name, nil, formatFloat(median),
				model.OpMedianFill, "missing_value"))
		}
	}
}

// filter applies the range filters in order: age, income fence, credit score.
// The income fence is computed over the rows that survived the age filter.
func (n *RecordNormalizer) filter(rows []*row, report *model.BatchReport, logger *zap.Logger) []*row {
	kept := rows[:0:0]
	for _, r := range rows {
		if math.IsNaN(r.age) || r.age <= n.opts.MinAge || r.age >= n.opts.MaxAge {
			report.Dropped[model.DropAge]++
			continue
		}
		kept = append(kept, r)
	}

	incomes := make([]float64, len(kept))
	for i, r := range kept {
		incomes[i] = r.income
	}
	fence, err := stats.IQRFence(incomes)
	if err == nil {
		survivors := kept[:0:0]
		for _, r := range kept {
			if math.IsNaN(r.income) || !fence.Contains(r.income) {
				report.Dropped[model.DropIncome]++
				continue
			}
			survivors = append(survivors, r)
		}
		kept = survivors
		logger.Debug("Income fence",
			zap.Float64("lower", fence.Lower),
			zap.Float64("upper", fence.Upper))
	} else if len(kept) > 0 {
		// Every surviving row lacks income
		report.Dropped[model.DropIncome] += len(kept)
		kept = kept[:0]
	}

	if n.opts.CreditScoreFilter {
		survivors := kept[:0:0]
		for _, r := range kept {
			if math.IsNaN(r.credit) || r.credit < n.opts.MinCreditScore || r.credit > n.opts.MaxCreditScore {
				report.Dropped[model.DropCreditScore]++
				continue
			}
			survivors = append(survivors, r)
		}
		kept = survivors
	}

	for _, r := range kept {
		r.out.Age = r.age
		r.out.Income = r.income
		r.out.CreditScore = nanToPtr(r.credit)
	}

	return kept
}
