package guardrail

import (
	"regexp"
	"strings"

	"github.com/creativcreature/euongelion-sub003/pkg/domain"
)

// scriptureRefPattern matches common English Bible book names and
// abbreviations followed by chapter:verse, with an optional verse range.
// Compound mentions ("Luke 17:21 + Matthew 6:33", "John 3:16 and Romans 8:1")
// fall out as independent matches, one citation each.
var scriptureRefPattern = regexp.MustCompile(
	`(?i)\b(?:(?:1|2|3|I|II|III)\s+)?` +
		`(?:Gen(?:esis)?|Exod(?:us)?|Lev(?:iticus)?|Num(?:bers)?|Deut(?:eronomy)?|` +
		`Josh(?:ua)?|Judg(?:es)?|Ruth|(?:1|2)\s*Sam(?:uel)?|(?:1|2)\s*Kgs?|` +
		`(?:1|2)\s*Chr(?:on)?|Ezra|Neh(?:emiah)?|Esth(?:er)?|Job|Ps(?:alm)?s?|` +
		`Prov(?:erbs)?|Eccl(?:es)?|Song|Isa(?:iah)?|Jer(?:emiah)?|Lam(?:entations)?|` +
		`Ezek(?:iel)?|Dan(?:iel)?|Hos(?:ea)?|Joel|Amos|Obad(?:iah)?|Jon(?:ah)?|` +
		`Mic(?:ah)?|Nah(?:um)?|Hab(?:akkuk)?|Zeph(?:aniah)?|Hag(?:gai)?|` +
		`Zech(?:ariah)?|Mal(?:achi)?|Matt(?:hew)?|Mark|Luke|John|Acts|Rom(?:ans)?|` +
		`(?:1|2)\s*Cor(?:inthians)?|Gal(?:atians)?|Eph(?:esians)?|Phil(?:ippians)?|` +
		`Col(?:ossians)?|(?:1|2)\s*Thess(?:alonians)?|(?:1|2)\s*Tim(?:othy)?|` +
		`Tit(?:us)?|Phlm|Philemon|Heb(?:rews)?|Jas|James|(?:1|2)\s*Pet(?:er)?|` +
		`(?:1|2|3)\s*Jn|Jude|Rev(?:elation)?)` +
		`\s+\d+(?:[:.]\d+)?(?:\s*[-–]\s*\d+)?`,
)

// ExtractCitations scans a generated reply for scripture references and
// returns one citation per distinct reference, in order of first appearance.
// The caller never has to trust the generation collaborator to self-report
// which anchors it touched.
func ExtractCitations(reply string) []domain.Citation {
	matches := scriptureRefPattern.FindAllString(reply, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	citations := make([]domain.Citation, 0, len(matches))
	for _, match := range matches {
		source := strings.Join(strings.Fields(match), " ")
		key := strings.ToLower(source)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, domain.Citation{
			ID:     len(citations) + 1,
			Source: source,
		})
	}
	return citations
}
