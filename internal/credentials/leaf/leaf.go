// Package leaf builds the Poseidon commitment that binds a verified identity
// into a credential. The hash order, field encodings and input-field paths
// are consumed by zero-knowledge circuits downstream and are fixed.
package leaf

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"idserver/internal/identity"
)

const derivationPoseidon = "poseidon"

// FieldsInLeaf lists, in order, the values committed by the issuer's leaf.
var FieldsInLeaf = []string{
	"issuer",
	"secret",
	"rawCreds.countryCode",
	"derivedCreds.nameDobCitySubdivisionZipStreetExpireHash.value",
	"rawCreds.completedAt",
	"scope",
}

// Derivation records how a derived value was computed.
type Derivation struct {
	Value              string   `json:"value"`
	DerivationFunction string   `json:"derivationFunction"`
	InputFields        []string `json:"inputFields"`
}

// RawCreds are the plaintext values that went into the hashes.
type RawCreds struct {
	CountryCode    uint64 `json:"countryCode"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	City           string `json:"city"`
	Subdivision    string `json:"subdivision"`
	ZipCode        uint64 `json:"zipCode"`
	StreetNumber   uint64 `json:"streetNumber"`
	StreetName     string `json:"streetName"`
	StreetUnit     uint64 `json:"streetUnit"`
	CompletedAt    string `json:"completedAt"`
	Birthdate      string `json:"birthdate"`
	ExpirationDate string `json:"expirationDate"`
}

// DerivedCreds are the Poseidon outputs.
type DerivedCreds struct {
	LeafHash    Derivation `json:"nameDobCitySubdivisionZipStreetExpireHash"`
	StreetHash  Derivation `json:"streetHash"`
	AddressHash Derivation `json:"addressHash"`
	NameHash    Derivation `json:"nameHash"`
}

// Creds is the full credential metadata returned alongside a signature.
type Creds struct {
	RawCreds     RawCreds     `json:"rawCreds"`
	DerivedCreds DerivedCreds `json:"derivedCreds"`
	FieldsInLeaf []string     `json:"fieldsInLeaf"`
}

// LeafHash is the value handed to the signer.
func (c *Creds) LeafHash() string { return c.DerivedCreds.LeafHash.Value }

// CountryCodeField is the country prime as the signer expects it.
func (c *Creds) CountryCodeField() string {
	return new(big.Int).SetUint64(c.RawCreds.CountryCode).String()
}

// UnsupportedCountryError is returned for documents from countries without
// an assigned prime.
type UnsupportedCountryError struct {
	Country string
}

func (e *UnsupportedCountryError) Error() string {
	return fmt.Sprintf("Unsupported country: %s", e.Country)
}

// Build derives the credential leaf for fields.
func Build(fields identity.RawIdentityFields) (*Creds, error) {
	prime, ok := identity.CountryPrime(fields.CountryCode)
	if !ok {
		return nil, &UnsupportedCountryError{Country: fields.CountryCode}
	}
	birthdate, err := DateAsInt(fields.Birthdate)
	if err != nil {
		return nil, fmt.Errorf("birthdate: %w", err)
	}
	expiration, err := DateAsInt(fields.ExpirationDate)
	if err != nil {
		return nil, fmt.Errorf("expiration date: %w", err)
	}
	zip := identity.ParseUint(fields.ZipCode)

	nameHash, err := hash(
		TextField(fields.FirstName),
		TextField(fields.MiddleName),
		TextField(fields.LastName),
	)
	if err != nil {
		return nil, fmt.Errorf("name hash: %w", err)
	}
	streetHash, err := hash(
		UintField(fields.StreetNumber),
		TextField(fields.StreetName),
		UintField(fields.StreetUnit),
	)
	if err != nil {
		return nil, fmt.Errorf("street hash: %w", err)
	}
	addressHash, err := hash(
		TextField(fields.City),
		TextField(fields.Subdivision),
		UintField(zip),
		streetHash,
	)
	if err != nil {
		return nil, fmt.Errorf("address hash: %w", err)
	}
	leafHash, err := hash(nameHash, birthdate, addressHash, expiration)
	if err != nil {
		return nil, fmt.Errorf("leaf hash: %w", err)
	}

	return &Creds{
		RawCreds: RawCreds{
			CountryCode:    prime,
			FirstName:      fields.FirstName,
			MiddleName:     fields.MiddleName,
			LastName:       fields.LastName,
			City:           fields.City,
			Subdivision:    fields.Subdivision,
			ZipCode:        zip,
			StreetNumber:   fields.StreetNumber,
			StreetName:     fields.StreetName,
			StreetUnit:     fields.StreetUnit,
			CompletedAt:    fields.CompletedAt,
			Birthdate:      fields.Birthdate,
			ExpirationDate: fields.ExpirationDate,
		},
		DerivedCreds: DerivedCreds{
			LeafHash: derived(leafHash,
				"derivedCreds.nameHash.value",
				"rawCreds.birthdate",
				"derivedCreds.addressHash.value",
				"rawCreds.expirationDate",
			),
			StreetHash: derived(streetHash,
				"rawCreds.streetNumber",
				"rawCreds.streetName",
				"rawCreds.streetUnit",
			),
			AddressHash: derived(addressHash,
				"rawCreds.city",
				"rawCreds.subdivision",
				"rawCreds.zipCode",
				"derivedCreds.streetHash.value",
			),
			NameHash: derived(nameHash,
				"rawCreds.firstName",
				"rawCreds.middleName",
				"rawCreds.lastName",
			),
		},
		FieldsInLeaf: append([]string(nil), FieldsInLeaf...),
	}, nil
}

func hash(inputs ...*big.Int) (*big.Int, error) {
	return poseidon.Hash(inputs)
}

func derived(v *big.Int, inputs ...string) Derivation {
	return Derivation{
		Value:              v.String(),
		DerivationFunction: derivationPoseidon,
		InputFields:        inputs,
	}
}
