package cart

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/service/travelers"
)

// AssignSeat назначает место пассажиру позиции. Занятость проверяется по позиции
// и по свежим данным поездки (зарезервированные и проданные места).
// Пассажир, ещё не выбранный в позицию, загружается из справочника и становится первым кандидатом.
func (s *Session) AssignSeat(ctx context.Context, lineID, travelerID string, seat int) (domain.CartLine, error) {
	s.mu.Lock()
	if err := s.mutable(); err != nil {
		s.mu.Unlock()
		return domain.CartLine{}, err
	}
	idx, err := s.resolveLineID(lineID)
	if err != nil {
		s.mu.Unlock()
		return domain.CartLine{}, err
	}
	serviceID := s.lines[idx].ServiceID
	cached, hasCached := s.trips[serviceID]
	traveler, known := travelers.FindSnapshot(s.lines, travelerID)
	s.mu.Unlock()

	if !known {
		if s.resolver == nil {
			return domain.CartLine{}, fmt.Errorf("traveler %s: %w", travelerID, domain.ErrTravelerNotCandidate)
		}
		traveler, err = s.resolver.LookupByID(ctx, s.companyID, travelerID)
		if err != nil {
			return domain.CartLine{}, err
		}
	}

	trip, err := s.dirs.GetTrip(ctx, s.companyID, serviceID)
	switch {
	case err == nil:
	case domain.IsNotFound(err):
		return domain.CartLine{}, fmt.Errorf("trip %s: %w", serviceID, err)
	case hasCached:
		s.logger.WithError(err).WithField("service_id", serviceID).Warn("trip occupancy refresh failed, using cached trip")
		trip = cached
	default:
		return domain.CartLine{}, fmt.Errorf("load trip %s: %w", serviceID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return domain.CartLine{}, err
	}
	s.trips[trip.ID] = trip
	idx, err = s.resolveLineID(lineID)
	if err != nil {
		return domain.CartLine{}, err
	}
	line := s.lines[idx]

	updated, err := s.allocator.Assign(line, traveler, seat, trip)
	if err != nil {
		return domain.CartLine{}, err
	}
	s.lines[idx] = updated
	s.logger.WithFields(log.Fields{
		"line_id":     line.ID,
		"traveler_id": travelerID,
		"seat":        seat,
	}).Debug("seat assigned")
	return updated.Clone(), nil
}

// ReleaseSeat снимает место с пассажира позиции.
func (s *Session) ReleaseSeat(lineID, travelerID string) (domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return domain.CartLine{}, err
	}
	idx, err := s.resolveLineID(lineID)
	if err != nil {
		return domain.CartLine{}, err
	}
	updated, ok := s.allocator.Release(s.lines[idx], travelerID)
	if !ok {
		return domain.CartLine{}, fmt.Errorf("traveler %s: %w", travelerID, domain.ErrTravelerNotCandidate)
	}
	s.lines[idx] = updated
	return updated.Clone(), nil
}
