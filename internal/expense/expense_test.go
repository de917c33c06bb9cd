package expense

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/grocermart-system/internal/model"
)

func ptrTime(t time.Time) *time.Time {
	return &t
}

func TestOrderAmount_FallbackToItems(t *testing.T) {
	o := model.Order{
		Items: []model.OrderItem{
			{Price: 10, Quantity: 2},
			{Price: 5, Quantity: 1},
		},
	}
	assert.Equal(t, 25.0, OrderAmount(o))

	o.TotalAmount = 30
	assert.Equal(t, 30.0, OrderAmount(o))
}

func TestRefillAmount_ByStatus(t *testing.T) {
	item := model.PantryItem{Price: 20, PacksOwned: 3, Status: model.PantryStatusConfirmed}
	assert.Equal(t, 60.0, RefillAmount(item))

	item.Status = model.PantryStatusRefillRequested
	assert.Equal(t, 0.0, RefillAmount(item))

	item.Status = model.PantryStatusStocked
	assert.Equal(t, 0.0, RefillAmount(item))

	item.LastRefilled = ptrTime(time.Now())
	assert.Equal(t, 60.0, RefillAmount(item))
}

func TestAggregate_TotalsMatchShopWise(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	orders := []model.Order{
		{ShopID: 1, TotalAmount: 100, OrderDate: now.AddDate(0, 0, -1)},
		{ShopID: 2, TotalAmount: 50, OrderDate: now.AddDate(0, 0, -2)},
	}
	refills := []model.PantryItem{
		{ShopID: 1, Price: 20, PacksOwned: 2, Status: model.PantryStatusDelivered, LastRefilled: ptrTime(now.AddDate(0, 0, -3))},
	}

	report := Aggregate(orders, refills, map[int64]string{1: "Лавка", 2: "Базар"}, TimeframeAll, now)

	require.Equal(t, 190.0, report.TotalSpent)

	var shopSum float64
	for _, s := range report.ShopWise {
		shopSum += s.Total
	}
	assert.Equal(t, report.TotalSpent, shopSum)

	var monthSum float64
	for _, m := range report.Monthly {
		monthSum += m.Total
	}
	assert.Equal(t, report.TotalSpent, monthSum)
}

func TestAggregate_WeekWindow(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	orders := []model.Order{
		{ShopID: 1, TotalAmount: 10, OrderDate: now.AddDate(0, 0, -3)},
		{ShopID: 1, TotalAmount: 99, OrderDate: now.AddDate(0, 0, -10)},
	}

	report := Aggregate(orders, nil, nil, TimeframeWeek, now)

	require.Len(t, report.Recent, 1)
	assert.Equal(t, 10.0, report.TotalSpent)

	all := Aggregate(orders, nil, nil, TimeframeAll, now)
	assert.Len(t, all.Recent, 2)
	assert.Equal(t, 109.0, all.TotalSpent)
}

func TestAggregate_RecentSortedAndLimited(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	var orders []model.Order
	for i := 0; i < 12; i++ {
		orders = append(orders, model.Order{
			ShopID:      1,
			TotalAmount: float64(i + 1),
			OrderDate:   now.AddDate(0, 0, -i),
		})
	}

	report := Aggregate(orders, nil, nil, TimeframeAll, now)

	require.Len(t, report.Recent, 10)
	for i := 1; i < len(report.Recent); i++ {
		assert.False(t, report.Recent[i].Date.After(report.Recent[i-1].Date),
			"recent transactions must be sorted by date descending")
	}
	// Самая свежая транзакция — первая.
	assert.Equal(t, 1.0, report.Recent[0].Amount)
}

func TestAggregate_MonthlyBuckets(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	orders := []model.Order{
		{ShopID: 1, TotalAmount: 10, OrderDate: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{ShopID: 1, TotalAmount: 20, OrderDate: time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)},
		{ShopID: 1, TotalAmount: 5, OrderDate: time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)},
	}

	report := Aggregate(orders, nil, nil, TimeframeAll, now)

	require.Len(t, report.Monthly, 3)
	assert.Equal(t, "March 2026", report.Monthly[0].Label)
	assert.Equal(t, 10.0, report.Monthly[0].Total)
	assert.Equal(t, "February 2026", report.Monthly[1].Label)
	assert.Equal(t, "December 2025", report.Monthly[2].Label)
}

func TestAggregate_UncommittedRefillKeptWithZeroAmount(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	refills := []model.PantryItem{
		{ShopID: 1, ProductName: "Гречка", Price: 50, PacksOwned: 2, Status: model.PantryStatusRefillRequested, CreatedAt: now.AddDate(0, 0, -1)},
	}

	report := Aggregate(nil, refills, nil, TimeframeAll, now)

	require.Len(t, report.Recent, 1)
	assert.Equal(t, 0.0, report.Recent[0].Amount)
	assert.Equal(t, 0.0, report.TotalSpent)
	require.Len(t, report.ShopWise, 1)
	assert.Equal(t, 1, report.ShopWise[0].Refills)
}

func TestAggregate_ShopNameRetained(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	orders := []model.Order{
		{ShopID: 7, TotalAmount: 10, OrderDate: now.AddDate(0, 0, -1)},
	}

	report := Aggregate(orders, nil, map[int64]string{7: "Молочный"}, TimeframeAll, now)

	require.Len(t, report.ShopWise, 1)
	assert.Equal(t, "Молочный", report.ShopWise[0].ShopName)
	assert.Equal(t, int64(7), report.ShopWise[0].ShopID)
}
