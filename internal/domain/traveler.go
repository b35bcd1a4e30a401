package domain

import "strings"

// Traveler — пассажир из внешнего Traveler Directory.
type Traveler struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name"`
	CPF       string `json:"cpf"`
	RG        string `json:"rg,omitempty"`
	BirthDate string `json:"birth_date"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// SameAs сравнивает пассажиров по (companyID, code), если код есть у обоих, иначе по ID.
func (t Traveler) SameAs(other Traveler) bool {
	if t.Code != "" && other.Code != "" {
		return t.CompanyID == other.CompanyID && t.Code == other.Code
	}
	return t.ID != "" && t.ID == other.ID
}

// TravelerFields — поля для создания пассажира.
type TravelerFields struct {
	CompanyID string `json:"company_id" validate:"required"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name" validate:"required"`
	CPF       string `json:"cpf" validate:"required"`
	RG        string `json:"rg,omitempty"`
	BirthDate string `json:"birth_date" validate:"required"`
	Email     string `json:"email,omitempty" validate:"omitempty,basic_email"`
	Phone     string `json:"phone,omitempty"`
}

// TravelerField — имя поля для точечного обновления.
type TravelerField string

const (
	TravelerFieldName      TravelerField = "name"
	TravelerFieldCPF       TravelerField = "cpf"
	TravelerFieldRG        TravelerField = "rg"
	TravelerFieldBirthDate TravelerField = "birth_date"
	TravelerFieldEmail     TravelerField = "email"
	TravelerFieldPhone     TravelerField = "phone"
)

// ParseTravelerField проверяет, что поле допустимо для обновления.
func ParseTravelerField(raw string) (TravelerField, error) {
	f := TravelerField(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case TravelerFieldName, TravelerFieldCPF, TravelerFieldRG,
		TravelerFieldBirthDate, TravelerFieldEmail, TravelerFieldPhone:
		return f, nil
	}
	return "", ErrTravelerFieldUnknown
}

// Get возвращает значение поля.
func (t Traveler) Get(field TravelerField) string {
	switch field {
	case TravelerFieldName:
		return t.Name
	case TravelerFieldCPF:
		return t.CPF
	case TravelerFieldRG:
		return t.RG
	case TravelerFieldBirthDate:
		return t.BirthDate
	case TravelerFieldEmail:
		return t.Email
	case TravelerFieldPhone:
		return t.Phone
	}
	return ""
}

// With возвращает копию пассажира с изменённым полем.
func (t Traveler) With(field TravelerField, value string) Traveler {
	switch field {
	case TravelerFieldName:
		t.Name = value
	case TravelerFieldCPF:
		t.CPF = value
	case TravelerFieldRG:
		t.RG = value
	case TravelerFieldBirthDate:
		t.BirthDate = value
	case TravelerFieldEmail:
		t.Email = value
	case TravelerFieldPhone:
		t.Phone = value
	}
	return t
}

// TravelerSearchField — поле поиска в каталоге пассажиров.
type TravelerSearchField string

const (
	TravelerSearchByCode TravelerSearchField = "code"
	TravelerSearchByCPF  TravelerSearchField = "cpf"
	TravelerSearchByName TravelerSearchField = "name"
)

// TravelerPage — страница результатов поиска.
type TravelerPage struct {
	Items []Traveler `json:"items"`
	Page  int        `json:"page"`
	Total int        `json:"total"`
}
