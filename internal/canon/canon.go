// Package canon canonicalizes building names into a search key and
// scores name similarity for the parser contract's verify_building_names_match
// policies.
package canon

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	orientationSuffixRe = regexp.MustCompile(`(?:EAST|WEST|NORTH|SOUTH|東|西|南|北)(?:棟)?$`)
	adCopyPatterns      = []*regexp.Regexp{
		regexp.MustCompile(`徒歩\d+分`),
		regexp.MustCompile(`の中古マンション`),
		regexp.MustCompile(`\d+LDK`),
		regexp.MustCompile(`\d+階建`),
		regexp.MustCompile(`築\d+年`),
	}
	symbolStripRe = regexp.MustCompile(`[・\-－—~〜\s]+`)
)

// Canonicalize folds a display building name into the search key used to
// look up an existing Building: width-fold ASCII/digits (katakana
// untouched), strip whitespace/・/dashes/tildes, upper-case, then strip a
// trailing orientation-wing suffix.
func Canonicalize(name string) string {
	folded := width.Fold.String(norm.NFKC.String(name))
	stripped := symbolStripRe.ReplaceAllString(folded, "")
	upper := strings.ToUpper(stripped)
	return orientationSuffixRe.ReplaceAllString(upper, "")
}

// LooksLikeAdCopy reports whether name matches one of the advertising-copy
// patterns (walking distance, generic "used condo" boilerplate, layout/floor
// counts, construction age) or is implausibly short.
func LooksLikeAdCopy(name string) bool {
	if len([]rune(name)) < 3 {
		return true
	}
	for _, re := range adCopyPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// trailingRoomNumberRe extracts a trailing room/unit number so callers can
// split it off the building name before canonicalizing.
var trailingRoomNumberRe = regexp.MustCompile(`\s*(\d{3,4})(?:号室?)?$`)

// SplitTrailingRoomNumber returns the building name with any trailing room
// number removed, plus that room number if one was found.
func SplitTrailingRoomNumber(name string) (building string, room string) {
	m := trailingRoomNumberRe.FindStringSubmatchIndex(name)
	if m == nil {
		return name, ""
	}
	building = strings.TrimSpace(name[:m[0]])
	room = name[m[2]:m[3]]
	return building, room
}

// HasPrefixMatch implements the abbreviation policy: a list name ending in
// an ellipsis is accepted when it is a prefix (after folding) of the detail
// name.
func HasPrefixMatch(listName, detailName string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(listName), "….")
	return strings.HasPrefix(Canonicalize(detailName), Canonicalize(trimmed))
}

// TokenContainmentScore implements the partial-match policy: the fraction of
// tokens in the shorter name (after folding and whitespace splitting) that
// also appear in the longer name. Names whose canonical forms are equal
// score 1.
func TokenContainmentScore(a, b string) float64 {
	if ca := Canonicalize(a); ca != "" && ca == Canonicalize(b) {
		return 1
	}
	ta := tokenize(norm.NFKC.String(a))
	tb := tokenize(norm.NFKC.String(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shorter, longer := ta, tb
	if len(tb) < len(ta) {
		shorter, longer = tb, ta
	}
	longerSet := make(map[string]struct{}, len(longer))
	for _, t := range longer {
		longerSet[t] = struct{}{}
	}
	matched := 0
	for _, t := range shorter {
		if _, ok := longerSet[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(shorter))
}

// tokenize splits s on spaces and canonicalizes each piece, dropping pieces
// that fold to nothing.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if t := Canonicalize(cur.String()); t != "" {
			tokens = append(tokens, t)
		}
		cur.Reset()
	}
	for _, r := range s {
		if r == ' ' {
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	if len(tokens) == 1 {
		// No whitespace to split on: fall back to rune-level tokens so
		// containment still degrades gracefully for CJK names.
		word := tokens[0]
		tokens = nil
		for _, r := range word {
			tokens = append(tokens, string(r))
		}
	}
	return tokens
}
