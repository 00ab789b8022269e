package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// RecordExists checks whether a record with the given ID exists on the
// object. Used as a sync pre-flight so a typoed record ID fails before any
// field writes.
func RecordExists(ctx context.Context, c Client, object, id string) (bool, error) {
	soql := fmt.Sprintf(
		"SELECT Id FROM %s WHERE Id = '%s' LIMIT 1",
		object,
		escapeSoql(id),
	)

	var records []struct {
		ID string `json:"Id" salesforce:"Id"`
	}
	if err := c.Query(ctx, soql, &records); err != nil {
		return false, eris.Wrap(err, fmt.Sprintf("sf: check record %s %s", object, id))
	}
	return len(records) > 0, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
