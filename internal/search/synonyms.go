package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/vitrina-search/vitrina/internal/catalog"
	"github.com/vitrina-search/vitrina/internal/kv"
)

// loadSynonyms reads the project's cached synonym groups. The cache is
// best effort: a missing key, an unreachable store or a corrupt value all
// degrade to no expansion rather than failing the search.
func (e *Engine) loadSynonyms(ctx context.Context, projectID string) catalog.SynonymGroups {
	raw, err := e.store.Get(ctx, kv.SynonymsKey(projectID))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			e.logger.Warn("synonyms load failed", "project_id", projectID, "err", err)
		}
		return nil
	}

	var groups catalog.SynonymGroups
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		e.logger.Warn("synonyms cache corrupt", "project_id", projectID, "err", err)
		return nil
	}
	return groups
}

// expandWithSynonyms widens tokens with every surface form of the first
// group containing each token, case-folded. Added forms are lowercased and
// deduplicated against everything already in the list; original token order
// is preserved.
func expandWithSynonyms(tokens []string, groups catalog.SynonymGroups) []string {
	if len(groups) == 0 {
		return tokens
	}

	expanded := make([]string, len(tokens), len(tokens)+4)
	copy(expanded, tokens)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		seen[strings.ToLower(t)] = struct{}{}
	}

	for _, token := range tokens {
		lower := strings.ToLower(token)
		for _, group := range groups {
			if !groupContains(group, lower) {
				continue
			}
			for _, syn := range group {
				s := strings.ToLower(syn)
				if _, dup := seen[s]; dup {
					continue
				}
				seen[s] = struct{}{}
				expanded = append(expanded, s)
			}
			break
		}
	}

	return expanded
}

func groupContains(group []string, lower string) bool {
	for _, w := range group {
		if strings.ToLower(w) == lower {
			return true
		}
	}
	return false
}
