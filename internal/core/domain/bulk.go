package domain

type RowStatus string

const (
	RowStatusSuccess RowStatus = "SUCCESS"
	RowStatusError   RowStatus = "ERROR"
)

// InventoryDeltaRow is one parsed line of a bulk inventory upload. A row whose
// ParseError is set is a placeholder: it still gets a result row so results
// stay aligned with the uploaded file.
type InventoryDeltaRow struct {
	Line       int
	Barcode    string
	Delta      int
	ParseError string
}

// ProductRow is one parsed line of a bulk product upload.
type ProductRow struct {
	Line        int    `json:"line"`
	Barcode     string `json:"barcode" validate:"required,max=64"`
	ClientEmail string `json:"client_email" validate:"required,email"`
	Name        string `json:"name" validate:"required,max=255"`
	MRP         string `json:"mrp" validate:"required,numeric"`
	ParseError  string `json:"-"`
}

// RowResult is the outcome reported for one input row.
type RowResult struct {
	Line    int
	Key     string
	Status  RowStatus
	Comment string
}

func (r RowResult) Failed() bool {
	return r.Status == RowStatusError
}
