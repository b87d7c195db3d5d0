// Package matching links Land Registry sales to EPC certificates. The two
// datasets share no key, so candidates are compared by address under a hard
// acceptance threshold: a missed link is recoverable, a false link is not.
package matching

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/sirupsen/logrus"

	"propertylens/internal/address"
	"propertylens/internal/models"
)

const (
	tokenSubsetBoost  = 15
	tokenOverlapBoost = 10
	substringBoost    = 20
	prefixBoost       = 10

	// Substring/prefix boosts only apply once the base score is halfway
	// plausible; below this they reward coincidence.
	boostFloor = 40
)

type Config struct {
	// Minimum boosted fuzzy score (tier 2) to accept a match
	FuzzyThreshold float64

	// Minimum raw character-similarity score (tier 3) to accept a match
	CharThreshold float64
}

// Matcher selects the best EPC certificate for a sale among candidates
// sharing its postcode.
type Matcher struct {
	normalizer     *address.Normalizer
	fuzzyThreshold float64
	charThreshold  float64
	logger         *logrus.Logger
}

func NewMatcher(normalizer *address.Normalizer, cfg Config, logger *logrus.Logger) *Matcher {
	return &Matcher{
		normalizer:     normalizer,
		fuzzyThreshold: cfg.FuzzyThreshold,
		charThreshold:  cfg.CharThreshold,
		logger:         logger,
	}
}

// BestMatch returns the best-matching candidate or nil when no candidate
// clears the acceptance thresholds. Three tiers run in order of precision:
// exact house-number + postcode, boosted token similarity, and a last-resort
// character-level comparison of the raw addresses.
func (m *Matcher) BestMatch(sale *models.Sale, candidates []models.EPCRecord) *models.EPCRecord {
	if len(candidates) == 0 {
		return nil
	}

	saleClean := m.normalizer.Normalize(sale.FullAddress)
	saleTokens := address.Tokens(saleClean)
	saleNumbers := address.ExtractNumbers(saleClean)
	salePostcode := address.NormalizePostcode(sale.Postcode)

	// Tier 1: a single unambiguous house number plus an identical postcode
	// avoids fuzzy-matching noise entirely.
	if len(saleNumbers) == 1 {
		for i := range candidates {
			epc := &candidates[i]
			epcNumbers := address.ExtractNumbers(m.normalizer.Normalize(epc.FullAddress))
			if containsToken(epcNumbers, saleNumbers[0]) && address.NormalizePostcode(epc.Postcode) == salePostcode {
				m.logger.WithFields(logrus.Fields{
					"tier":         "number_postcode",
					"sale_address": sale.FullAddress,
					"epc_address":  epc.FullAddress,
					"sale_id":      sale.UniqueID,
					"lmk_key":      epc.LMKKey,
				}).Info("Matched on house number and postcode")
				return epc
			}
		}
	}

	// Tier 2: boosted fuzzy scoring over normalized addresses
	var bestScore float64
	var bestEPC *models.EPCRecord

	for i := range candidates {
		epc := &candidates[i]
		epcClean := m.normalizer.Normalize(epc.FullAddress)
		epcNumbers := address.ExtractNumbers(epcClean)

		// A single sale number missing from the candidate is near-certain
		// proof of non-match; skip before scoring.
		if len(saleNumbers) == 1 && !containsToken(epcNumbers, saleNumbers[0]) {
			continue
		}

		score, base, boosts := scoreCandidate(saleClean, saleTokens, epcClean)

		m.logger.WithFields(logrus.Fields{
			"tier":        "fuzzy",
			"score":       score,
			"base":        base,
			"boosts":      strings.Join(boosts, "+"),
			"sale_clean":  saleClean,
			"epc_clean":   epcClean,
			"sale_id":     sale.UniqueID,
			"lmk_key":     epc.LMKKey,
		}).Debug("Scored EPC candidate")

		if score > bestScore {
			bestScore = score
			bestEPC = epc
		}
	}

	if bestEPC != nil && bestScore >= m.fuzzyThreshold {
		m.logger.WithFields(logrus.Fields{
			"tier":         "fuzzy",
			"score":        bestScore,
			"sale_address": sale.FullAddress,
			"epc_address":  bestEPC.FullAddress,
			"sale_id":      sale.UniqueID,
			"lmk_key":      bestEPC.LMKKey,
		}).Info("Accepted fuzzy match")
		return bestEPC
	}

	// Tier 3: character similarity over the raw addresses, lowercased only.
	// Ignores the tier-2 numeric pruning so typos in house numbers can still
	// link, but demands near-identity.
	var bestCharScore float64
	var bestCharEPC *models.EPCRecord

	saleRaw := strings.ToLower(sale.FullAddress)
	for i := range candidates {
		epc := &candidates[i]
		charScore := float64(fuzzy.Ratio(saleRaw, strings.ToLower(epc.FullAddress)))
		if charScore > bestCharScore {
			bestCharScore = charScore
			bestCharEPC = epc
		}
	}

	if bestCharEPC != nil && bestCharScore >= m.charThreshold {
		m.logger.WithFields(logrus.Fields{
			"tier":         "character",
			"score":        bestCharScore,
			"sale_address": sale.FullAddress,
			"epc_address":  bestCharEPC.FullAddress,
			"sale_id":      sale.UniqueID,
			"lmk_key":      bestCharEPC.LMKKey,
		}).Info("Accepted character-similarity match")
		return bestCharEPC
	}

	m.logger.WithFields(logrus.Fields{
		"sale_address":    sale.FullAddress,
		"postcode":        sale.Postcode,
		"sale_id":         sale.UniqueID,
		"best_fuzzy":      bestScore,
		"best_char":       bestCharScore,
		"candidate_count": len(candidates),
	}).Warn("No EPC match for sale")
	return nil
}

// scoreCandidate computes the tier-2 score for one candidate: token-sort
// ratio plus heuristic boosts, clamped to 100. The boost names are returned
// for audit logging.
func scoreCandidate(saleClean string, saleTokens map[string]struct{}, epcClean string) (score, base float64, boosts []string) {
	epcTokens := address.Tokens(epcClean)

	base = float64(fuzzy.TokenSortRatio(saleClean, epcClean))
	score = base

	if len(saleTokens) > 0 && isSubset(saleTokens, epcTokens) {
		score += tokenSubsetBoost
		boosts = append(boosts, "token_subset")
	}

	if overlaps(saleTokens, epcTokens) {
		score += tokenOverlapBoost
		boosts = append(boosts, "token_overlap")
	}

	if base > boostFloor {
		if strings.Contains(epcClean, saleClean) {
			score += substringBoost
			boosts = append(boosts, "substring")
		} else if strings.HasPrefix(epcClean, saleClean) {
			score += prefixBoost
			boosts = append(boosts, "prefix")
		}
	}

	if score > 100 {
		score = 100
	}
	return score, base, boosts
}

func containsToken(tokens []string, want string) bool {
	for _, tok := range tokens {
		if tok == want {
			return true
		}
	}
	return false
}

func isSubset(sub, super map[string]struct{}) bool {
	for tok := range sub {
		if _, ok := super[tok]; !ok {
			return false
		}
	}
	return true
}

func overlaps(a, b map[string]struct{}) bool {
	for tok := range a {
		if _, ok := b[tok]; ok {
			return true
		}
	}
	return false
}
