package experiment

import (
	"fmt"

	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/pkg/hash"
)

// The import flow accepts pre-computed evaluation records instead of running
// queries. Records are heterogeneous free-form documents; each is normalized
// independently so one malformed record never fails the whole import.

// queryKey returns the query-identifying field of an import record.
// searchText is the preferred key, queryText the legacy one; whichever is
// present stays under its original name, the two are never merged.
func queryKey(record docstore.Document) (key, value string, ok bool) {
	if v, found := record["searchText"].(string); found && v != "" {
		return "searchText", v, true
	}
	if v, found := record["queryText"].(string); found && v != "" {
		return "queryText", v, true
	}
	return "", "", false
}

// FlattenRecord hoists a nested "metrics" map to the top level and removes
// the "metrics" key. All other fields, including the query-identifying field,
// pass through unchanged. The input is not mutated; the result is
// independent of map insertion order.
func FlattenRecord(record docstore.Document) docstore.Document {
	out := make(docstore.Document, len(record))
	for k, v := range record {
		if k == "metrics" {
			continue
		}
		out[k] = v
	}

	if metrics, ok := record["metrics"].(map[string]any); ok {
		for name, value := range metrics {
			out[name] = value
		}
	}

	return out
}

// ImportOutcomes normalizes a list of pre-computed evaluation records into
// task outcomes for the aggregator. Every record yields exactly one outcome:
// malformed records (no query-identifying field) become failed outcomes
// rather than aborting the import. The record index disambiguates repeated
// query texts.
func ImportOutcomes(records []docstore.Document) []*Outcome {
	outcomes := make([]*Outcome, 0, len(records))

	for i, record := range records {
		taskID := hash.TaskID(fmt.Sprintf("import-%d", i), "")

		key, queryText, ok := queryKey(record)
		if !ok {
			outcomes = append(outcomes, &Outcome{
				TaskID: taskID,
				Failed: true,
				Reason: "import record has no searchText or queryText field",
			})
			continue
		}

		taskID = hash.TaskID(queryText, fmt.Sprintf("import-%d", i))
		flattened := FlattenRecord(record)
		// The query field stays under its original key in the flattened body.
		flattened[key] = queryText

		outcomes = append(outcomes, &Outcome{
			TaskID:    taskID,
			QueryText: queryText,
			Imported:  flattened,
		})
	}

	return outcomes
}
