package driver

// Vehicle describes the car a driver is registered with.
type Vehicle struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Color string `json:"color,omitempty"`
	Plate string `json:"plate,omitempty"`
}

// Profile is the read-only driver record shown to passengers on acceptance.
// Registration and editing belong to the identity side, not this service.
type Profile struct {
	ID          string
	Name        string
	PhoneNumber string
	Rating      float64
	Vehicle     Vehicle
}
