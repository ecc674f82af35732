// Package catalog is the client for the platform's feature-store surface:
// feature groups with an online key-value store and an offline bulk store.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

// FeatureType classifies the values a feature column holds.
type FeatureType string

const (
	TypeIntegral   FeatureType = "Integral"
	TypeFractional FeatureType = "Fractional"
	TypeString     FeatureType = "String"
)

// FeatureDefinition is one named, typed column of a feature group.
type FeatureDefinition struct {
	Name string      `json:"name"`
	Type FeatureType `json:"type"`
}

// Schema describes a feature group's columns plus which of them identify a
// record and carry its event time.
type Schema struct {
	RecordIdentifier string              `json:"record_identifier"`
	EventTimeFeature string              `json:"event_time_feature"`
	Features         []FeatureDefinition `json:"features"`
}

// Validate checks that the schema is internally consistent: non-empty unique
// feature names, and identifier/event-time features that actually exist.
func (s Schema) Validate() error {
	if len(s.Features) == 0 {
		return errors.New("schema has no features")
	}
	if s.RecordIdentifier == "" {
		return errors.New("record identifier feature is required")
	}
	if s.EventTimeFeature == "" {
		return errors.New("event time feature is required")
	}

	seen := make(map[string]bool, len(s.Features))
	for _, f := range s.Features {
		if f.Name == "" {
			return errors.New("feature with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate feature %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case TypeIntegral, TypeFractional, TypeString:
		default:
			return fmt.Errorf("feature %q has unknown type %q", f.Name, f.Type)
		}
	}

	if !seen[s.RecordIdentifier] {
		return fmt.Errorf("record identifier %q is not among the features", s.RecordIdentifier)
	}
	if !seen[s.EventTimeFeature] {
		return fmt.Errorf("event time feature %q is not among the features", s.EventTimeFeature)
	}
	return nil
}

// FeatureNames returns the feature names in schema order.
func (s Schema) FeatureNames() []string {
	names := make([]string, len(s.Features))
	for i, f := range s.Features {
		names[i] = f.Name
	}
	return names
}

// HasFeature reports whether name is defined in the schema.
func (s Schema) HasFeature(name string) bool {
	for _, f := range s.Features {
		if f.Name == name {
			return true
		}
	}
	return false
}

// GroupStatus is the provisioning lifecycle state of a feature group.
type GroupStatus string

const (
	GroupCreating     GroupStatus = "Creating"
	GroupCreated      GroupStatus = "Created"
	GroupCreateFailed GroupStatus = "CreateFailed"
	GroupDeleting     GroupStatus = "Deleting"
	GroupDeleteFailed GroupStatus = "DeleteFailed"
)

// FeatureGroup is the platform's view of a group. OfflineTable and
// OfflineLocation are assigned server-side and are only ever read from
// Describe responses.
type FeatureGroup struct {
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Schema          Schema      `json:"schema"`
	OnlineEnabled   bool        `json:"online_enabled"`
	Status          GroupStatus `json:"status"`
	FailureReason   string      `json:"failure_reason,omitempty"`
	OfflineTable    string      `json:"offline_table,omitempty"`
	OfflineLocation string      `json:"offline_location,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// FeatureValue is one named value of a record. Wire values are strings; the
// schema gives them their type.
type FeatureValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Record is an ordered list of feature values. A record is keyed by its
// identifier feature; writing the same identifier and event time again
// replaces the prior version.
type Record []FeatureValue

// Get returns the value for name and whether it is present.
func (r Record) Get(name string) (string, bool) {
	for _, fv := range r {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return "", false
}

// Values returns the record as a name -> value map.
func (r Record) Values() map[string]string {
	m := make(map[string]string, len(r))
	for _, fv := range r {
		m[fv.Name] = fv.Value
	}
	return m
}

// ErrRecordNotFound is returned by GetRecord when the online store has no
// record for the requested identifier.
var ErrRecordNotFound = errors.New("record not found")
