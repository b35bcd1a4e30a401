package travelers

import (
	"strings"
	"unicode"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// Normalize приводит значение поля к виду, в котором оно хранится в справочнике:
// для cpf и phone остаются только цифры, для birth_date — только дата.
func Normalize(field domain.TravelerField, value string) string {
	value = strings.TrimSpace(value)
	switch field {
	case domain.TravelerFieldCPF, domain.TravelerFieldPhone:
		return digitsOnly(value)
	case domain.TravelerFieldBirthDate:
		return datePart(value)
	}
	return value
}

// NormalizeFields нормализует поля нового пассажира.
func NormalizeFields(f domain.TravelerFields) domain.TravelerFields {
	f.CompanyID = strings.TrimSpace(f.CompanyID)
	f.Code = strings.TrimSpace(f.Code)
	f.Name = Normalize(domain.TravelerFieldName, f.Name)
	f.CPF = Normalize(domain.TravelerFieldCPF, f.CPF)
	f.RG = Normalize(domain.TravelerFieldRG, f.RG)
	f.BirthDate = Normalize(domain.TravelerFieldBirthDate, f.BirthDate)
	f.Email = Normalize(domain.TravelerFieldEmail, f.Email)
	f.Phone = Normalize(domain.TravelerFieldPhone, f.Phone)
	return f
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// datePart отрезает время от ISO-даты: "1990-05-01T00:00:00Z" -> "1990-05-01".
func datePart(s string) string {
	if i := strings.IndexAny(s, "T "); i >= 0 {
		return s[:i]
	}
	return s
}
