// Package persistence holds encoding helpers shared by the SQL stores.
package persistence

import (
	"encoding/json"

	domorder "example.com/shopcore/internal/domain/order"
)

type addressJSON struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Company   string `json:"company,omitempty"`
	Street    string `json:"street"`
	Apartment string `json:"apartment,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
}

func EncodeAddress(a domorder.Address) ([]byte, error) {
	return json.Marshal(addressJSON(a))
}

// EncodeOptionalAddress returns nil for a nil address so the column stays NULL.
func EncodeOptionalAddress(a *domorder.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return EncodeAddress(*a)
}

func DecodeAddress(raw []byte) (domorder.Address, error) {
	var a addressJSON
	if err := json.Unmarshal(raw, &a); err != nil {
		return domorder.Address{}, err
	}
	return domorder.Address(a), nil
}

func DecodeOptionalAddress(raw []byte) (*domorder.Address, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	a, err := DecodeAddress(raw)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func EncodeStrings(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}

func DecodeStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
