// Package pantry реализует жизненный цикл пополнения запаса.
package pantry

import (
	"errors"
	"time"

	"github.com/mmeshcher/grocermart-system/internal/model"
)

// Actor определяет, от чьего имени выполняется переход статуса.
type Actor string

const (
	ActorConsumer Actor = "consumer"
	ActorShop     Actor = "shop"
)

var (
	// ErrInvalidTransition возвращается при недопустимом переходе статуса.
	ErrInvalidTransition = errors.New("invalid pantry status transition")
	// ErrRefillInFlight возвращается при повторной заявке на пополнение,
	// пока предыдущая ещё не завершена.
	ErrRefillInFlight = errors.New("refill already in flight")
)

// transitions перечисляет допустимые переходы по актору. Переходы, пропускающие
// состояние, запрещены: CONFIRMED не может сразу стать DELIVERED.
var transitions = map[Actor]map[model.PantryStatus][]model.PantryStatus{
	ActorConsumer: {
		model.PantryStatusStocked:   {model.PantryStatusRefillRequested},
		model.PantryStatusDelivered: {model.PantryStatusRefillRequested, model.PantryStatusStocked},
	},
	ActorShop: {
		model.PantryStatusRefillRequested: {model.PantryStatusConfirmed},
		model.PantryStatusConfirmed:       {model.PantryStatusOutForDelivery},
		model.PantryStatusOutForDelivery:  {model.PantryStatusDelivered},
	},
}

// inFlight содержит статусы, при которых заявка на пополнение уже обрабатывается.
var inFlight = map[model.PantryStatus]bool{
	model.PantryStatusRefillRequested: true,
	model.PantryStatusConfirmed:       true,
	model.PantryStatusOutForDelivery:  true,
}

// Validate проверяет допустимость перехода from → to для указанного актора.
func Validate(actor Actor, from, to model.PantryStatus) error {
	if to == model.PantryStatusRefillRequested && inFlight[from] {
		return ErrRefillInFlight
	}

	for _, allowed := range transitions[actor][from] {
		if allowed == to {
			return nil
		}
	}

	return ErrInvalidTransition
}

// NextStatuses возвращает допустимые следующие статусы из текущего состояния
// для указанного актора. Пустой результат означает отсутствие доступных действий.
func NextStatuses(actor Actor, from model.PantryStatus) []model.PantryStatus {
	res := make([]model.PantryStatus, len(transitions[actor][from]))
	copy(res, transitions[actor][from])
	return res
}

// CountsAsSpend сообщает, учитывается ли пополнение в расходах покупателя.
// Заявка REFILL_REQUESTED сама по себе тратой ещё не считается; CONFIRMED и
// OUT_FOR_DELIVERY трактуются как уже принятые расходы.
func CountsAsSpend(status model.PantryStatus, lastRefilled *time.Time) bool {
	switch status {
	case model.PantryStatusDelivered:
		return true
	case model.PantryStatusConfirmed, model.PantryStatusOutForDelivery:
		return true
	case model.PantryStatusStocked:
		return lastRefilled != nil
	default:
		return false
	}
}

// QueueFilter задаёт фильтр очереди заявок на стороне магазина.
type QueueFilter string

const (
	QueueFilterPending QueueFilter = "pending"
	QueueFilterActive  QueueFilter = "active"
	QueueFilterAll     QueueFilter = "all"
)

// FilterStatuses возвращает набор статусов, соответствующий фильтру очереди.
// Пустой срез означает отсутствие ограничения по статусу.
func FilterStatuses(f QueueFilter) []model.PantryStatus {
	switch f {
	case QueueFilterPending:
		return []model.PantryStatus{model.PantryStatusRefillRequested}
	case QueueFilterActive:
		return []model.PantryStatus{model.PantryStatusConfirmed, model.PantryStatusOutForDelivery}
	default:
		return nil
	}
}
