// Package seats распределяет номера мест между пассажирами позиции корзины.
// Раскладка салона и нумерация — на стороне внешней записи о поездке;
// здесь проверяется только уникальность номеров.
package seats

import (
	"fmt"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// Allocator не хранит состояния: каждая операция принимает позицию и возвращает новую копию.
type Allocator struct{}

// NewAllocator создаёт аллокатор мест.
func NewAllocator() Allocator {
	return Allocator{}
}

// OccupiedSeats возвращает номера мест, уже назначенных в позиции.
func (Allocator) OccupiedSeats(line domain.CartLine) []int {
	seats := make([]int, 0, len(line.Assigned))
	for _, a := range line.Assigned {
		seats = append(seats, a.SeatNumber)
	}
	return seats
}

// IsFree проверяет место по позиции и по занятости поездки.
func (a Allocator) IsFree(line domain.CartLine, trip domain.Trip, seat int) bool {
	for _, s := range a.OccupiedSeats(line) {
		if s == seat {
			return false
		}
	}
	return !trip.IsSeatOccupied(seat)
}

// Assign назначает место пассажиру. При ошибке исходная позиция не меняется.
// trip может быть пустым, если данные поездки недоступны: тогда проверяется только сама позиция.
func (a Allocator) Assign(line domain.CartLine, traveler domain.TravelerRef, seat int, trip domain.Trip) (domain.CartLine, error) {
	if seat < 1 || (trip.Vehicle.TotalSeats > 0 && seat > trip.Vehicle.TotalSeats) {
		return line, fmt.Errorf("seat %d: %w", seat, domain.ErrInvalidSeat)
	}
	if _, seated := line.AssignmentFor(traveler.ID); seated {
		return line, fmt.Errorf("traveler %s: %w", traveler.ID, domain.ErrTravelerAlreadySeated)
	}
	if len(line.Assigned) >= line.Quantity {
		return line, domain.ErrLineFull
	}
	if !a.IsFree(line, trip, seat) {
		return line, fmt.Errorf("seat %d: %w", seat, domain.ErrSeatConflict)
	}

	out := line.Clone()
	out.Assigned = append(out.Assigned, domain.SeatAssignment{
		TravelerID:   traveler.ID,
		TravelerName: traveler.Name,
		SeatNumber:   seat,
	})
	if out.CandidateIndex(traveler) < 0 {
		out.Candidates = append([]domain.TravelerRef{traveler}, out.Candidates...)
	}
	return out.FitCandidates(), nil
}

// Release снимает место с пассажира; пассажир остаётся кандидатом позиции.
func (Allocator) Release(line domain.CartLine, travelerID string) (domain.CartLine, bool) {
	out := line.Clone()
	for i, a := range out.Assigned {
		if a.TravelerID == travelerID {
			out.Assigned = append(out.Assigned[:i], out.Assigned[i+1:]...)
			return out, true
		}
	}
	return line, false
}
