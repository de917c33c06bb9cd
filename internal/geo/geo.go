// Package geo реализует подбор магазинов по радиусу доставки.
package geo

import (
	"math"
	"sort"

	"github.com/mmeshcher/grocermart-system/internal/model"
)

// DefaultDeliveryRadiusKm используется, если магазин не указал радиус доставки.
const DefaultDeliveryRadiusKm = 5

const earthRadiusKm = 6371

// Match описывает магазин, способный доставить по указанным координатам.
// DistanceKm округлено до двух знаков и предназначено для отображения.
type Match struct {
	Shop       model.Shop
	DistanceKm float64
}

// Distance возвращает расстояние по большому кругу между двумя точками
// в километрах (формула гаверсинусов).
func Distance(a, b model.Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	// Вблизи антиподов h из-за округления может чуть превысить 1,
	// тогда Sqrt(1-h) даёт NaN.
	h = math.Min(h, 1)

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Valid сообщает, являются ли координаты конечной парой в допустимых пределах.
func Valid(c model.Coordinates) bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return false
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return math.Abs(c.Latitude) <= 90 && math.Abs(c.Longitude) <= 180
}

// MatchShops возвращает магазины, доставляющие по координатам покупателя,
// в порядке возрастания расстояния. Магазины без корректных координат
// пропускаются без ошибки. Сравнение с радиусом и сортировка используют
// неокруглённое расстояние; граница радиуса включается.
func MatchShops(consumer model.Coordinates, shops []model.Shop) []Match {
	if !Valid(consumer) {
		return nil
	}

	type candidate struct {
		shop model.Shop
		dist float64
	}

	var candidates []candidate
	for _, s := range shops {
		if s.Location.Coordinates == nil || !Valid(*s.Location.Coordinates) {
			continue
		}

		radius := s.DeliveryRadiusKm
		if radius <= 0 {
			radius = DefaultDeliveryRadiusKm
		}

		dist := Distance(consumer, *s.Location.Coordinates)
		if dist > radius {
			continue
		}

		candidates = append(candidates, candidate{shop: s, dist: dist})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	res := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		res = append(res, Match{
			Shop:       c.shop,
			DistanceKm: math.Round(c.dist*100) / 100,
		})
	}

	return res
}
