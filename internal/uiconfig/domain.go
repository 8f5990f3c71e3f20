package uiconfig

import "time"

// Page is a navigable UI surface. Pages form a tree via ParentID; top-level
// pages carry a nil parent.
type Page struct {
	ID           int64     `json:"id"`
	ParentID     *int64    `json:"parentId,omitempty"`
	Key          string    `json:"key"`
	Label        string    `json:"label"`
	Route        string    `json:"route"`
	Icon         string    `json:"icon,omitempty"`
	DisplayOrder int       `json:"displayOrder"`
	IsMenuItem   bool      `json:"isMenuItem"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Action is an operation a page exposes. An action optionally points at the
// catalog endpoint it invokes; actions without an endpoint are always shown.
type Action struct {
	ID           int64  `json:"id"`
	PageID       int64  `json:"pageId"`
	EndpointID   *int64 `json:"endpointId,omitempty"`
	Label        string `json:"label"`
	Action       string `json:"action"`
	Icon         string `json:"icon,omitempty"`
	Variant      string `json:"variant,omitempty"`
	DisplayOrder int    `json:"displayOrder"`
	IsActive     bool   `json:"isActive"`
}
