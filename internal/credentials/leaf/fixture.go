package leaf

import "idserver/internal/identity"

// DummyIdentity is the reference identity whose leaf values are published
// with the credential format. Useful for smoke tests against a signer.
func DummyIdentity() identity.RawIdentityFields {
	return identity.RawIdentityFields{
		CountryCode:    "US",
		FirstName:      "Satoshi",
		MiddleName:     "Bitcoin",
		LastName:       "Nakamoto",
		Birthdate:      "1950-01-01",
		City:           "New York",
		Subdivision:    "NY",
		StreetNumber:   123,
		StreetName:     "Main St",
		ZipCode:        "12345",
		ExpirationDate: "2023-09-16",
		CompletedAt:    "2022-09-16",
	}
}
