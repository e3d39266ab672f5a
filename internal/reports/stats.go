package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ultrahd-dev/helpdesk/internal/auth"
	"github.com/Ultrahd-dev/helpdesk/internal/pagination"
	"github.com/sourcegraph/conc/pool"
)

const recentReports = 5

// Stats сводка для панели управления
type Stats struct {
	Overview Overview  `json:"overview"`
	Trends   Trends    `json:"trends"`
	Charts   Charts    `json:"charts"`
	Recent   []Summary `json:"recent"`
}

// Overview общее число заявок и разбивка по статусам
type Overview struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
	Closed     int `json:"closed"`
	Critical   int `json:"critical"`
}

// Trends заявки с начала месяца против заявок за последний месяц
type Trends struct {
	ThisMonth int `json:"thisMonth"`
	LastMonth int `json:"lastMonth"`
	// Change изменение в процентах с одним знаком после запятой
	Change string `json:"change"`
}

// Charts количества по ключам в нижнем регистре, отсутствующие значения равны 0
type Charts struct {
	Status   map[string]int `json:"status"`
	Type     map[string]int `json:"type"`
	Priority map[string]int `json:"priority"`
}

// Stats собирает сводку; пользователь видит статистику только своих заявок.
// Независимые запросы выполняются параллельно.
func (s *Service) Stats(ctx context.Context, actor auth.Identity) (*Stats, error) {
	scope := ListScope(actor, Filter{})
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	monthAgo := now.AddDate(0, -1, 0)

	var (
		byStatus, byType, byPriority map[string]int
		stats                        = &Stats{}
	)

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) (err error) {
		byStatus, err = s.store.CountBy(ctx, ByStatus, scope)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		byType, err = s.store.CountBy(ctx, ByType, scope)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		byPriority, err = s.store.CountBy(ctx, ByPriority, scope)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		f := scope
		f.CreatedSince = &monthStart
		stats.Trends.ThisMonth, err = s.store.CountReports(ctx, f)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		f := scope
		f.CreatedSince = &monthAgo
		stats.Trends.LastMonth, err = s.store.CountReports(ctx, f)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		stats.Recent, _, err = s.store.ListReports(ctx, scope, pagination.New(1, recentReports))
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect dashboard stats: %w", err)
	}

	for _, n := range byStatus {
		stats.Overview.Total += n
	}
	stats.Overview.Open = byStatus[string(StatusOpen)]
	stats.Overview.InProgress = byStatus[string(StatusInProgress)]
	stats.Overview.Resolved = byStatus[string(StatusResolved)]
	stats.Overview.Closed = byStatus[string(StatusClosed)]
	stats.Overview.Critical = byPriority[string(PriorityCritical)]

	stats.Trends.Change = percentChange(stats.Trends.ThisMonth, stats.Trends.LastMonth)

	stats.Charts = Charts{
		Status:   chart(Statuses, byStatus),
		Type:     chart(IncidentTypes, byType),
		Priority: chart(Priorities, byPriority),
	}
	if stats.Recent == nil {
		stats.Recent = []Summary{}
	}

	return stats, nil
}

func chart[T ~string](keys []T, counts map[string]int) map[string]int {
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[strings.ToLower(string(k))] = counts[string(k)]
	}
	return out
}

func percentChange(current, previous int) string {
	if previous == 0 {
		return "0"
	}
	return fmt.Sprintf("%.1f", float64(current-previous)/float64(previous)*100)
}
