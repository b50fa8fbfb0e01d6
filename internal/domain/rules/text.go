package rules

import "strings"

// accentFold strips the Portuguese diacritics that appear in volumetry
// exports. The vocabulary is fixed, so a table beats full Unicode
// normalization here.
var accentFold = strings.NewReplacer(
	"Á", "A", "Â", "A", "Ã", "A", "À", "A", "Ä", "A",
	"É", "E", "Ê", "E", "È", "E", "Ë", "E",
	"Í", "I", "Î", "I", "Ì", "I", "Ï", "I",
	"Ó", "O", "Ô", "O", "Õ", "O", "Ò", "O", "Ö", "O",
	"Ú", "U", "Û", "U", "Ù", "U", "Ü", "U",
	"Ç", "C",
	"á", "a", "â", "a", "ã", "a", "à", "a", "ä", "a",
	"é", "e", "ê", "e", "è", "e", "ë", "e",
	"í", "i", "î", "i", "ì", "i", "ï", "i",
	"ó", "o", "ô", "o", "õ", "o", "ò", "o", "ö", "o",
	"ú", "u", "û", "u", "ù", "u", "ü", "u",
	"ç", "c",
)

// foldKey canonicalizes a free-text value for comparison: trimmed,
// uppercased, diacritics stripped.
func foldKey(s string) string {
	return strings.ToUpper(accentFold.Replace(strings.TrimSpace(s)))
}

// collapseSpaces trims and collapses runs of whitespace to single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// classification placeholders that count as "empty" and may be overwritten.
var placeholders = map[string]bool{
	"":                      true,
	"SC":                    true,
	"GERAL":                 true,
	"COLUNAS":               true,
	"ONCO MEDICINA INTERNA": true,
}

// isPlaceholder reports whether a classification value is absent or a
// known-bad label that classification rules are allowed to replace.
func isPlaceholder(v string) bool {
	return placeholders[foldKey(v)]
}
