package dto

type TopUpRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Reference   string `json:"reference" validate:"required,max=160"`
	Description string `json:"description" validate:"omitempty,max=500"`
}
