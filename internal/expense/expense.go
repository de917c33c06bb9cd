// Package expense реализует сводку расходов покупателя по заказам и пополнениям.
package expense

import (
	"fmt"
	"sort"
	"time"

	"github.com/mmeshcher/grocermart-system/internal/model"
	"github.com/mmeshcher/grocermart-system/internal/pantry"
)

// Timeframe задаёт окно выборки транзакций.
type Timeframe string

const (
	TimeframeAll   Timeframe = "all"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeYear  Timeframe = "year"
)

// ParseTimeframe приводит строку запроса к известному окну, по умолчанию all.
func ParseTimeframe(s string) Timeframe {
	switch Timeframe(s) {
	case TimeframeWeek, TimeframeMonth, TimeframeYear:
		return Timeframe(s)
	default:
		return TimeframeAll
	}
}

// окна приближённые: месяц и год не календарные.
var windows = map[Timeframe]time.Duration{
	TimeframeWeek:  7 * 24 * time.Hour,
	TimeframeMonth: 30 * 24 * time.Hour,
	TimeframeYear:  365 * 24 * time.Hour,
}

// TransactionType различает источник транзакции.
type TransactionType string

const (
	TransactionOrder  TransactionType = "order"
	TransactionRefill TransactionType = "refill"
)

// Transaction — одна строка объединённой истории трат.
type Transaction struct {
	Type     TransactionType `json:"type"`
	Amount   float64         `json:"amount"`
	Date     time.Time       `json:"date"`
	ShopID   int64           `json:"shop_id"`
	ShopName string          `json:"shop_name"`
	Items    []string        `json:"items,omitempty"`
}

// ShopSpend — суммарные траты в одном магазине.
type ShopSpend struct {
	ShopID   int64   `json:"shop_id"`
	ShopName string  `json:"shop_name"`
	Total    float64 `json:"total"`
	Orders   int     `json:"orders"`
	Refills  int     `json:"refills"`
}

// MonthSpend — суммарные траты за календарный месяц.
type MonthSpend struct {
	Label string  `json:"month"`
	Total float64 `json:"total"`
}

// Report — итоговая сводка расходов за выбранное окно.
type Report struct {
	TotalSpent float64      `json:"total_spent"`
	ShopWise   []ShopSpend  `json:"shop_wise_spending"`
	Monthly    []MonthSpend `json:"monthly_spending"`
	Recent     []Transaction `json:"recent_transactions"`
}

const recentLimit = 10

// OrderAmount возвращает сумму заказа: сохранённый totalAmount, если он задан,
// иначе сумму позиций.
func OrderAmount(o model.Order) float64 {
	if o.TotalAmount > 0 {
		return o.TotalAmount
	}
	var sum float64
	for _, it := range o.Items {
		sum += it.Price * float64(it.Quantity)
	}
	return sum
}

// RefillAmount возвращает стоимость пополнения. Незавершённая заявка остаётся
// в истории с нулевой суммой.
func RefillAmount(item model.PantryItem) float64 {
	if !pantry.CountsAsSpend(item.Status, item.LastRefilled) {
		return 0
	}
	return item.Price * float64(item.PacksOwned)
}

// Aggregate объединяет заказы и пополнения в единую историю трат и считает
// итоги: общую сумму, разбивку по магазинам и по месяцам, последние транзакции.
// shopNames сопоставляет идентификатору магазина отображаемое имя.
func Aggregate(orders []model.Order, refills []model.PantryItem, shopNames map[int64]string, tf Timeframe, now time.Time) Report {
	merged := make([]Transaction, 0, len(orders)+len(refills))

	for _, o := range orders {
		items := make([]string, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, it.Name)
		}
		merged = append(merged, Transaction{
			Type:     TransactionOrder,
			Amount:   OrderAmount(o),
			Date:     o.OrderDate,
			ShopID:   o.ShopID,
			ShopName: shopNames[o.ShopID],
			Items:    items,
		})
	}

	for _, item := range refills {
		date := item.CreatedAt
		if item.LastRefilled != nil {
			date = *item.LastRefilled
		}
		merged = append(merged, Transaction{
			Type:     TransactionRefill,
			Amount:   RefillAmount(item),
			Date:     date,
			ShopID:   item.ShopID,
			ShopName: shopNames[item.ShopID],
			Items:    []string{item.ProductName},
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})

	if window, ok := windows[tf]; ok {
		filtered := merged[:0]
		for _, tx := range merged {
			if now.Sub(tx.Date) <= window {
				filtered = append(filtered, tx)
			}
		}
		merged = filtered
	}

	report := Report{Recent: merged}
	if len(merged) > recentLimit {
		report.Recent = merged[:recentLimit]
	}

	shopTotals := make(map[int64]*ShopSpend)
	var shopOrder []int64

	// Ключ месячной корзины — целое year*12+month, а не отображаемая метка.
	monthTotals := make(map[int]float64)

	for _, tx := range merged {
		report.TotalSpent += tx.Amount

		spend, ok := shopTotals[tx.ShopID]
		if !ok {
			spend = &ShopSpend{ShopID: tx.ShopID}
			shopTotals[tx.ShopID] = spend
			shopOrder = append(shopOrder, tx.ShopID)
		}
		spend.Total += tx.Amount
		if tx.ShopName != "" {
			spend.ShopName = tx.ShopName
		}
		if tx.Type == TransactionOrder {
			spend.Orders++
		} else {
			spend.Refills++
		}

		key := tx.Date.Year()*12 + int(tx.Date.Month()) - 1
		monthTotals[key] += tx.Amount
	}

	report.ShopWise = make([]ShopSpend, 0, len(shopOrder))
	for _, id := range shopOrder {
		report.ShopWise = append(report.ShopWise, *shopTotals[id])
	}
	sort.SliceStable(report.ShopWise, func(i, j int) bool {
		return report.ShopWise[i].Total > report.ShopWise[j].Total
	})

	monthKeys := make([]int, 0, len(monthTotals))
	for k := range monthTotals {
		monthKeys = append(monthKeys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(monthKeys)))

	report.Monthly = make([]MonthSpend, 0, len(monthKeys))
	for _, k := range monthKeys {
		report.Monthly = append(report.Monthly, MonthSpend{
			Label: monthLabel(k),
			Total: monthTotals[k],
		})
	}

	return report
}

func monthLabel(key int) string {
	year := key / 12
	month := time.Month(key%12 + 1)
	return fmt.Sprintf("%s %d", month, year)
}
