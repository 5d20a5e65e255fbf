package onfido

// Check is the body of GET /checks/{id}.
type Check struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Result      string   `json:"result"`
	ApplicantID string   `json:"applicant_id"`
	ReportIDs   []string `json:"report_ids"`
	CreatedAt   string   `json:"created_at"`
}

// Report is the body of GET /reports/{id}. Only document reports carry
// identity properties.
type Report struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Status     string           `json:"status"`
	Result     string           `json:"result"`
	SubResult  string           `json:"sub_result"`
	CreatedAt  string           `json:"created_at"`
	Properties ReportProperties `json:"properties"`
}

type ReportProperties struct {
	FirstName      string    `json:"first_name"`
	MiddleName     *string   `json:"middle_name"`
	LastName       string    `json:"last_name"`
	DateOfBirth    string    `json:"date_of_birth"`
	DateOfExpiry   string    `json:"date_of_expiry"`
	IssuingCountry string    `json:"issuing_country"`
	Nationality    string    `json:"nationality"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	HouseNumber    string    `json:"houseNumber"`
	Street         string    `json:"street"`
	Unit           string    `json:"unit"`
	Postcode       string    `json:"postcode"`
	CreatedAt      string    `json:"created_at"`
	Barcode        []Barcode `json:"barcode"`
}

type Barcode struct {
	MiddleName *string `json:"middle_name"`
}
