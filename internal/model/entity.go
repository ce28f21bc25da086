// Package model defines the core entity and event types shared across the
// coordination platform.
package model

import (
	"time"
)

// EntityKind distinguishes the searchable record families.
type EntityKind string

const (
	KindResource EntityKind = "resource"
	KindDisaster EntityKind = "disaster"
)

// Valid reports whether the kind is one of the known entity families.
func (k EntityKind) Valid() bool {
	return k == KindResource || k == KindDisaster
}

// ContactInfo holds structured contact details for a resource.
type ContactInfo struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Phone string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

// Metadata carries the optional descriptive fields of an entity. All fields
// tolerate absence; zero values are omitted on the wire.
type Metadata struct {
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Contact     *ContactInfo `json:"contact,omitempty" yaml:"contact,omitempty"`
	Capacity    *int         `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Severity    string       `json:"severity,omitempty" yaml:"severity,omitempty"`
	Tags        []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Entity is a point-tagged record (resource or disaster). Coord is set from a
// resolved LocationName at creation and re-resolved only when LocationName
// changes; while Coord is nil the entity is invisible to radius search but
// still listable by kind and type.
type Entity struct {
	ID           string       `json:"id"`
	Kind         EntityKind   `json:"kind"`
	Name         string       `json:"name"`
	LocationName string       `json:"location_name"`
	Coord        *Coordinates `json:"coord,omitempty"`
	Type         string       `json:"type"`
	Meta         Metadata     `json:"meta,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Searchable reports whether the entity participates in radius queries.
func (e *Entity) Searchable() bool {
	return e.Coord != nil
}
