package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// InferSchema builds a Schema from a CSV header and sample rows, classifying
// each column by the strictest numeric type all its non-empty values satisfy:
// Integral, then Fractional, then String. Columns with no values at all are
// String.
//
// recordIdentifier must be one of the header columns. eventTimeFeature may be
// absent from the header; it is then appended as a String feature and stamped
// at ingestion time.
func InferSchema(header []string, sample [][]string, recordIdentifier, eventTimeFeature string) (Schema, error) {
	if len(header) == 0 {
		return Schema{}, fmt.Errorf("empty header")
	}
	if recordIdentifier == "" {
		return Schema{}, fmt.Errorf("record identifier is required")
	}
	if eventTimeFeature == "" {
		return Schema{}, fmt.Errorf("event time feature is required")
	}

	features := make([]FeatureDefinition, 0, len(header)+1)
	haveID := false
	haveEventTime := false
	for col, name := range header {
		if name == "" {
			return Schema{}, fmt.Errorf("column %d has an empty name", col)
		}
		if name == recordIdentifier {
			haveID = true
		}
		if name == eventTimeFeature {
			haveEventTime = true
		}
		features = append(features, FeatureDefinition{
			Name: name,
			Type: inferColumnType(sample, col),
		})
	}

	if !haveID {
		return Schema{}, fmt.Errorf("record identifier %q not found in header", recordIdentifier)
	}
	if !haveEventTime {
		features = append(features, FeatureDefinition{Name: eventTimeFeature, Type: TypeString})
	}

	schema := Schema{
		RecordIdentifier: recordIdentifier,
		EventTimeFeature: eventTimeFeature,
		Features:         features,
	}
	if err := schema.Validate(); err != nil {
		return Schema{}, err
	}
	return schema, nil
}

func inferColumnType(sample [][]string, col int) FeatureType {
	integral := true
	fractional := true
	seen := false

	for _, row := range sample {
		if col >= len(row) {
			continue
		}
		v := row[col]
		if v == "" {
			continue
		}
		seen = true
		if integral {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				integral = false
			}
		}
		if !integral && fractional {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				fractional = false
			}
		}
		if !integral && !fractional {
			return TypeString
		}
	}

	switch {
	case !seen:
		return TypeString
	case integral:
		return TypeIntegral
	case fractional:
		return TypeFractional
	default:
		return TypeString
	}
}

// LoadSchema reads an explicit JSON schema definition.
func LoadSchema(r io.Reader) (Schema, error) {
	var s Schema
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Schema{}, fmt.Errorf("decoding schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}
