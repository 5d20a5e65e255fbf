package veriff

// DecisionResponse is the body of GET /v1/sessions/{id}/decision.
type DecisionResponse struct {
	Status       string        `json:"status"`
	Verification *Verification `json:"verification"`
}

type Verification struct {
	ID             string    `json:"id"`
	Code           int       `json:"code"`
	Status         string    `json:"status"`
	Reason         *string   `json:"reason"`
	DecisionTime   string    `json:"decisionTime"`
	AcceptanceTime string    `json:"acceptanceTime"`
	Person         Person    `json:"person"`
	Document       *Document `json:"document"`
}

type Person struct {
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	DateOfBirth string    `json:"dateOfBirth"`
	Nationality string    `json:"nationality"`
	Addresses   []Address `json:"addresses"`
}

type Address struct {
	FullAddress   string        `json:"fullAddress"`
	ParsedAddress ParsedAddress `json:"parsedAddress"`
}

type ParsedAddress struct {
	City        string `json:"city"`
	Unit        string `json:"unit"`
	State       string `json:"state"`
	Street      string `json:"street"`
	Country     string `json:"country"`
	Postcode    string `json:"postcode"`
	HouseNumber string `json:"houseNumber"`
}

type Document struct {
	Number     string `json:"number"`
	Type       string `json:"type"`
	Country    string `json:"country"`
	ValidFrom  string `json:"validFrom"`
	ValidUntil string `json:"validUntil"`
}
