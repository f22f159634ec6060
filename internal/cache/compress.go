package cache

import "encoding/json"

// reducer extracts the semantically essential fields of a known payload
// shape. maxExcerpts bounds list-valued fields so large source documents do
// not dominate the store.
type reducer func(doc map[string]any, maxExcerpts int) map[string]any

// reducers maps metadata type discriminators to their field subsets.
// Unrecognized types are stored verbatim.
var reducers = map[string]reducer{
	"news_article":     reduceNewsArticle,
	"election_results": reduceElectionResults,
	"campaign_finance": reduceCampaignFinance,
	"poll":             reducePoll,
}

// compress reduces a recognized payload to its essential fields and reports
// the stored-to-original size ratio. For unknown types, or payloads that are
// not JSON objects, the original bytes come back with ratio 1.
func compress(payloadType string, original json.RawMessage, maxExcerpts int) (json.RawMessage, float64, bool) {
	reduce, ok := reducers[payloadType]
	if !ok {
		return original, 1, false
	}
	var doc map[string]any
	if err := json.Unmarshal(original, &doc); err != nil {
		return original, 1, false
	}
	reduced := reduce(doc, maxExcerpts)
	data, err := json.Marshal(reduced)
	if err != nil || len(data) >= len(original) {
		return original, 1, false
	}
	return data, float64(len(data)) / float64(len(original)), true
}

func reduceNewsArticle(doc map[string]any, maxExcerpts int) map[string]any {
	out := pick(doc, "title", "source", "url", "date", "published_date")
	if excerpt, ok := doc["excerpt"]; ok {
		out["excerpt"] = excerpt
	} else if summary, ok := doc["summary"]; ok {
		out["excerpt"] = summary
	} else if desc, ok := doc["description"]; ok {
		out["excerpt"] = desc
	}
	if excerpts, ok := doc["key_excerpts"].([]any); ok {
		if len(excerpts) > maxExcerpts {
			excerpts = excerpts[:maxExcerpts]
		}
		out["key_excerpts"] = excerpts
	}
	return out
}

func reduceElectionResults(doc map[string]any, maxExcerpts int) map[string]any {
	out := pick(doc, "race", "office", "date", "winner", "source", "url")
	if results, ok := doc["results"].([]any); ok {
		trimmed := make([]any, 0, len(results))
		for _, r := range results {
			row, ok := r.(map[string]any)
			if !ok {
				continue
			}
			trimmed = append(trimmed, pick(row, "candidate", "party", "votes", "percent"))
		}
		out["results"] = trimmed
	}
	return out
}

func reduceCampaignFinance(doc map[string]any, maxExcerpts int) map[string]any {
	out := pick(doc, "candidate", "cycle", "total_raised", "total_spent", "cash_on_hand", "source", "url")
	if contributors, ok := doc["top_contributors"].([]any); ok {
		if len(contributors) > maxExcerpts {
			contributors = contributors[:maxExcerpts]
		}
		out["top_contributors"] = contributors
	}
	return out
}

func reducePoll(doc map[string]any, maxExcerpts int) map[string]any {
	out := pick(doc, "pollster", "date", "sample_size", "margin_of_error", "source", "url")
	if results, ok := doc["results"]; ok {
		out["results"] = results
	}
	return out
}

func pick(doc map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if val, ok := doc[key]; ok {
			out[key] = val
		}
	}
	return out
}
