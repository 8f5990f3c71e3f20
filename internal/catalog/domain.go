package catalog

import "time"

// Endpoint is a cataloged backend route. The (service, version, method, path)
// tuple is unique; inactive endpoints never match a request.
type Endpoint struct {
	ID          int64     `json:"id"`
	Service     string    `json:"service"`
	Version     string    `json:"version"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Descriptor is the matcher-facing projection of an Endpoint.
type Descriptor struct {
	ID      int64
	Path    string
	Service string
	Version string
	Active  bool
}
