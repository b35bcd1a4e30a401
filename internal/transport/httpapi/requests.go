package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/service/travelers"
)

type openSessionRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
}

type addLineRequest struct {
	ServiceCode      string `json:"service_code" validate:"required_without=ServiceID"`
	ServiceID        string `json:"service_id"`
	ConfirmDuplicate bool   `json:"confirm_duplicate"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type activeLineRequest struct {
	LineID string `json:"line_id" validate:"required"`
}

type selectTravelerRequest struct {
	Code string `json:"code" validate:"required_without=CPF"`
	CPF  string `json:"cpf"`
}

// createTravelerRequest — company_id по умолчанию берётся из сессии, обязательные поля проверяет Resolver.
type createTravelerRequest struct {
	CompanyID string `json:"company_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CPF       string `json:"cpf"`
	RG        string `json:"rg"`
	BirthDate string `json:"birth_date"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (r createTravelerRequest) fields() domain.TravelerFields {
	return domain.TravelerFields{
		CompanyID: r.CompanyID,
		Code:      r.Code,
		Name:      r.Name,
		CPF:       r.CPF,
		RG:        r.RG,
		BirthDate: r.BirthDate,
		Email:     r.Email,
		Phone:     r.Phone,
	}
}

type editTravelerRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
}

type seatRequest struct {
	TravelerID string `json:"traveler_id" validate:"required"`
	Seat       int    `json:"seat" validate:"required,min=1"`
}

type adjustmentPayload struct {
	Mode   string          `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
}

func (p adjustmentPayload) adjustment() (domain.Adjustment, error) {
	kind, err := domain.ParseAdjustmentKind(p.Mode)
	if err != nil {
		return domain.Adjustment{}, err
	}
	return domain.Adjustment{Kind: kind, Amount: p.Amount}, nil
}

type adjustmentsRequest struct {
	Discount adjustmentPayload `json:"discount"`
	Addition adjustmentPayload `json:"addition"`
}

type paymentRequest struct {
	Method       string          `json:"method" validate:"required"`
	Installments int             `json:"installments"`
	InterestRate decimal.Decimal `json:"interest_rate"`
}

type customerRequest struct {
	Code string `json:"code" validate:"required"`
}

type sellerRequest struct {
	SellerID string `json:"seller_id" validate:"required"`
}

// maxRequestBodyBytes ограничивает тело любого запроса API.
const maxRequestBodyBytes = 1 << 20

// bodyError отделяет превышение лимита тела (413) от прочих ошибок чтения (400).
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: %v", errInvalidBody, err)
}

// decodeJSONBody разбирает тело без неизвестных полей и проверяет теги validate.
// Тело уже ограничено middleware limitBody.
func (h *Handler) decodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return bodyError(err)
	}
	if err := h.validate.Struct(dest); err != nil {
		return travelers.FormatValidationErrors(errInvalidBody, err)
	}
	return nil
}
