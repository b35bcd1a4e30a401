package travelers

import (
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// EditState — состояние правки одного поля пассажира.
type EditState string

const (
	EditPending    EditState = "pending"
	EditConfirmed  EditState = "confirmed"
	EditRolledBack EditState = "rolled_back"
)

// FieldEdit — запись о правке поля: UI отличает "сохранено" от "попытка не удалась".
type FieldEdit struct {
	TravelerID string               `json:"traveler_id"`
	Field      domain.TravelerField `json:"field"`
	Value      string               `json:"value"`
	Previous   string               `json:"previous"`
	State      EditState            `json:"state"`
	Error      string               `json:"error,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Key идентифицирует правку: для одного поля пассажира хранится последняя попытка.
func (e FieldEdit) Key() string {
	return e.TravelerID + "/" + string(e.Field)
}
