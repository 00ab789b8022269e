package salesforce

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
)

// PushValues writes the given field values onto one record. Nil and
// empty-string values are dropped before the update; an update with nothing
// left to write is an error so callers notice an empty sync.
func PushValues(ctx context.Context, c Client, object, recordID string, fields map[string]any) error {
	if recordID == "" {
		return eris.New("sf: record id is required")
	}

	values := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil || v == "" {
			continue
		}
		values[k] = v
	}
	if len(values) == 0 {
		return eris.New("sf: no fields to update")
	}

	if err := c.UpdateOne(ctx, object, recordID, values); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: push values to %s %s", object, recordID))
	}
	return nil
}

// UpdateableFields describes the object and returns its updateable fields
// indexed by API name.
func UpdateableFields(ctx context.Context, c Client, object string) (map[string]SObjectField, error) {
	desc, err := c.DescribeSObject(ctx, object)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: updateable fields for %s", object))
	}

	out := make(map[string]SObjectField, len(desc.Fields))
	for _, f := range desc.Fields {
		if f.Updateable {
			out[f.Name] = f
		}
	}
	return out, nil
}

// FilterUpdateable splits the values into those writable on the object and
// the field names that are unknown or read-only, sorted for stable logging.
func FilterUpdateable(values map[string]any, updateable map[string]SObjectField) (map[string]any, []string) {
	kept := make(map[string]any, len(values))
	var skipped []string
	for k, v := range values {
		if _, ok := updateable[k]; ok {
			kept[k] = v
		} else {
			skipped = append(skipped, k)
		}
	}
	sort.Strings(skipped)
	return kept, skipped
}
