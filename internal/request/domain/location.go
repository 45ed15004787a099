package domain

import "strings"

// Coordinates — опциональная точка на карте
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Location — структурированный адрес заявки. Address обязателен.
type Location struct {
	Address     string       `json:"address" validate:"required,max=300"`
	City        string       `json:"city,omitempty" validate:"omitempty,max=100"`
	State       string       `json:"state,omitempty" validate:"omitempty,max=100"`
	ZipCode     string       `json:"zip_code,omitempty" validate:"omitempty,max=20"`
	VehicleInfo string       `json:"vehicle_info,omitempty" validate:"omitempty,max=300"`
	Coordinates *Coordinates `json:"coordinates,omitempty" validate:"omitempty"`
}

// Normalized trims whitespace from every text field.
func (l Location) Normalized() Location {
	out := l.clone()
	out.Address = strings.TrimSpace(out.Address)
	out.City = strings.TrimSpace(out.City)
	out.State = strings.TrimSpace(out.State)
	out.ZipCode = strings.TrimSpace(out.ZipCode)
	out.VehicleInfo = strings.TrimSpace(out.VehicleInfo)
	return out
}

func (l Location) clone() Location {
	if l.Coordinates != nil {
		c := *l.Coordinates
		l.Coordinates = &c
	}
	return l
}
