package catalog

import (
	"sort"
	"strings"

	"salesdash/internal"
	"salesdash/internal/util"
)

const (
	UnknownProductID    = "UNKNOWN"
	UnknownProductTitle = "Unknown product"
)

type MatchReason string

const (
	ReasonCode    MatchReason = "CODE"
	ReasonName    MatchReason = "NAME"
	ReasonPrefix  MatchReason = "PREFIX"
	ReasonFuzzy   MatchReason = "FUZZY"
	ReasonRaw     MatchReason = "RAW"
	ReasonUnknown MatchReason = "UNKNOWN"
)

// Identity is the product join key used by every per-product accumulation.
type Identity struct {
	ID     string
	Title  string
	Reason MatchReason
}

type MatchOptions struct {
	NameThreshold float64
	GapThreshold  float64
}

func DefaultMatchOptions() MatchOptions {
	return MatchOptions{NameThreshold: 0.75, GapThreshold: 0.08}
}

// Index is an immutable lookup snapshot of the catalog. It is built once per
// request and is safe for concurrent reads.
type Index struct {
	opts           MatchOptions
	items          []internal.CatalogItem
	byCode         map[string]int
	byName         map[string][]int
	normalizedName []string
	tokenToItems   map[string][]int
}

type candidate struct {
	pos   int
	score float64
}

func BuildIndex(items []internal.CatalogItem, opts MatchOptions) *Index {
	idx := &Index{
		opts:           opts,
		items:          make([]internal.CatalogItem, 0, len(items)),
		byCode:         map[string]int{},
		byName:         map[string][]int{},
		normalizedName: make([]string, 0, len(items)),
		tokenToItems:   map[string][]int{},
	}

	for _, item := range items {
		pos := len(idx.items)
		idx.items = append(idx.items, item)

		normName := util.NormalizeName(item.Name)
		idx.normalizedName = append(idx.normalizedName, normName)
		if normName != "" {
			idx.byName[normName] = append(idx.byName[normName], pos)
		}

		if code := util.NormalizeCode(item.Code); code != "" {
			if _, exists := idx.byCode[code]; !exists {
				idx.byCode[code] = pos
			}
		}

		seen := map[string]struct{}{}
		for _, token := range util.Tokenize(item.Name) {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			idx.tokenToItems[token] = append(idx.tokenToItems[token], pos)
		}
	}

	return idx
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.items)
}

// Resolve maps a line's code and description to a product identity: exact
// code match, then catalog name heuristics on the description, then the raw
// code or description, then the unknown placeholder. A nil index skips the
// catalog steps.
func (idx *Index) Resolve(code, description string) Identity {
	code = strings.TrimSpace(code)
	description = strings.TrimSpace(description)

	if idx != nil {
		if norm := util.NormalizeCode(code); norm != "" {
			if pos, ok := idx.byCode[norm]; ok {
				return idx.identityAt(pos, ReasonCode)
			}
		}
		if description != "" {
			if id, ok := idx.matchName(description); ok {
				return id
			}
		}
	}

	switch {
	case code != "":
		return Identity{ID: code, Title: util.FirstNonEmpty(description, code), Reason: ReasonRaw}
	case description != "":
		return Identity{ID: description, Title: description, Reason: ReasonRaw}
	default:
		return Identity{ID: UnknownProductID, Title: UnknownProductTitle, Reason: ReasonUnknown}
	}
}

func (idx *Index) matchName(description string) (Identity, bool) {
	normalized := util.NormalizeName(description)
	if normalized == "" {
		return Identity{}, false
	}

	if exact := idx.byName[normalized]; len(exact) == 1 {
		return idx.identityAt(exact[0], ReasonName), true
	}

	if pos, ok := idx.longestPrefix(normalized); ok {
		return idx.identityAt(pos, ReasonPrefix), true
	}

	candidates := idx.rankCandidates(normalized)
	if len(candidates) == 0 {
		return Identity{}, false
	}
	top := candidates[0]
	gap := top.score
	if len(candidates) > 1 {
		gap = top.score - candidates[1].score
	}
	if top.score >= idx.opts.NameThreshold && gap >= idx.opts.GapThreshold {
		return idx.identityAt(top.pos, ReasonFuzzy), true
	}
	return Identity{}, false
}

// longestPrefix finds the single catalog name that starts the description on a
// word boundary, e.g. "WIDGET PRO" for "WIDGET PRO BLUE SIZE L".
func (idx *Index) longestPrefix(normalized string) (int, bool) {
	tokens := util.Tokenize(normalized)
	if len(tokens) == 0 {
		return 0, false
	}

	best, bestLen, ambiguous := -1, 0, false
	for _, pos := range idx.tokenToItems[tokens[0]] {
		name := idx.normalizedName[pos]
		if !strings.HasPrefix(normalized+" ", name+" ") {
			continue
		}
		switch {
		case len(name) > bestLen:
			best, bestLen, ambiguous = pos, len(name), false
		case len(name) == bestLen:
			ambiguous = true
		}
	}
	if best < 0 || ambiguous {
		return 0, false
	}
	return best, true
}

func (idx *Index) rankCandidates(query string) []candidate {
	queryTokens := util.Tokenize(query)
	positions := map[int]struct{}{}
	for _, token := range queryTokens {
		for _, pos := range idx.tokenToItems[token] {
			positions[pos] = struct{}{}
		}
	}

	out := make([]candidate, 0, len(positions))
	for pos := range positions {
		name := idx.normalizedName[pos]
		out = append(out, candidate{pos: pos, score: scoreName(query, name, queryTokens, util.Tokenize(name))})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].pos < out[j].pos
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func scoreName(query, target string, queryTokens, targetTokens []string) float64 {
	dice := util.DiceCoefficient(query, target)
	if len(queryTokens) == 0 || len(targetTokens) == 0 {
		return dice
	}

	set := map[string]struct{}{}
	for _, t := range targetTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range queryTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	tokenScore := float64(overlap) / float64(len(queryTokens))
	return 0.65*dice + 0.35*tokenScore
}

func (idx *Index) identityAt(pos int, reason MatchReason) Identity {
	item := idx.items[pos]
	id := strings.TrimSpace(item.Code)
	if id == "" {
		id = strings.TrimSpace(item.Name)
	}
	return Identity{ID: id, Title: util.FirstNonEmpty(item.Name, item.Code), Reason: reason}
}
