package app

import (
	"context"
	"sort"
	"strconv"

	"quiz-checkout-service/internal/domain"
)

const recentSalesLimit = 10

// AnalyticsService summarizes recorded sales.
type AnalyticsService struct {
	records PaymentRecordRepository
}

func NewAnalyticsService(records PaymentRecordRepository) *AnalyticsService {
	return &AnalyticsService{records: records}
}

// Summary aggregates the paid records of productID.
func (s *AnalyticsService) Summary(ctx context.Context, productID string) (domain.SalesSummary, error) {
	records, err := s.records.List(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{
		ProductID:         productID,
		LevelDistribution: make(map[string]int),
		RecentSales:       []domain.PaymentRecord{},
	}
	paid := make([]domain.PaymentRecord, 0, len(records))
	scoreSum, scored := 0, 0
	for _, rec := range records {
		if rec.ProductID != productID || !rec.Paid() {
			continue
		}
		paid = append(paid, rec)
		summary.TotalRevenue += rec.Amount
		if summary.Currency == "" {
			summary.Currency = rec.Currency
		}
		if rec.Level != "" {
			summary.LevelDistribution[rec.Level]++
		}
		if score, err := strconv.Atoi(rec.Score); err == nil {
			scoreSum += score
			scored++
		}
	}
	summary.TotalSales = len(paid)
	if scored > 0 {
		summary.AverageScore = float64(scoreSum) / float64(scored)
	}

	sort.Slice(paid, func(i, j int) bool {
		if !paid[i].CreatedAt.Equal(paid[j].CreatedAt) {
			return paid[i].CreatedAt.After(paid[j].CreatedAt)
		}
		return paid[i].SessionID < paid[j].SessionID
	})
	if len(paid) > recentSalesLimit {
		paid = paid[:recentSalesLimit]
	}
	summary.RecentSales = append(summary.RecentSales, paid...)
	return summary, nil
}
