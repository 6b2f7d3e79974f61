package provision

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

// Academic terms are named like "2019-2020 Fall" or "2019-2020 Spring 1".
// The known term words abbreviate differently for a team domain ("f19") and
// a team display name ("Fa19"). Order matters: multi-word entries run before
// the whitespace and punctuation strips.
var termAbbrs = []struct {
	re      *regexp.Regexp
	domain  string
	display string
}{
	{regexp.MustCompile(`Fall`), "f", "Fa"},
	{regexp.MustCompile(`Spring`), "s", "Sp"},
	{regexp.MustCompile(`Winter`), "w", "Wi"},
	{regexp.MustCompile(`Summer`), "su", "Sum"},
	{regexp.MustCompile(`June`), "jun", "Jun"},
	{regexp.MustCompile(`July`), "jul", "Jul"},
	{regexp.MustCompile(`August`), "aug", "Aug"},
	{regexp.MustCompile(` and `), "", ""},
	{regexp.MustCompile(`Full Year`), "fy", "FY"},
	{regexp.MustCompile(`Saturday`), "sat", "Sat"},
	{regexp.MustCompile(`\s+`), "", ""},
	{regexp.MustCompile(`[^\w-]`), "", ""},
}

var (
	termPattern    = regexp.MustCompile(`^(\d+)-?(\d*?)\s(.*)`)
	nonDomainChars = regexp.MustCompile(`[^a-z0-9-]`)
	dashRuns       = regexp.MustCompile(`-+`)
	nonWordChars   = regexp.MustCompile(`[^\w-]`)
)

const (
	domainForm = iota
	displayForm
)

// TeamDomain derives the Slack domain slug for a course workspace. The
// result is at most 21 characters of [a-z0-9-], ending in a 3-character
// random suffix so repeated derivations for the same course stay unique
// within the grid.
func TeamDomain(courseCode, termName string) string {
	domain := strings.ToLower(courseCode) + "-" + strings.ToLower(abbreviateTerm(termName, domainForm))
	domain = nonDomainChars.ReplaceAllString(domain, "-")
	domain = dashRuns.ReplaceAllString(domain, "-")
	// 21-char Slack limit, minus separator plus the 3-char random suffix
	if len(domain) > 17 {
		domain = domain[:17]
	}
	if !strings.HasSuffix(domain, "-") {
		domain += "-"
	}
	return domain + randomString(3)
}

// TeamName derives the workspace display name. It needs to be unique within
// a grid; the course SIS id takes care of that. Capped at 100 characters.
func TeamName(courseCode, termName, courseSISID string) string {
	name := fmt.Sprintf("%s (%s) %s", courseCode, abbreviateTerm(termName, displayForm), courseSISID)
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}

// abbreviateTerm shortens a term name like "2019-2020 Fall" to "f19" (domain
// form) or "Fa19" (display form). Spring terms take the second year since
// they fall in it. Terms that do not match the expected pattern pass through
// stripped (domain form) or unchanged (display form).
func abbreviateTerm(termName string, form int) string {
	m := termPattern.FindStringSubmatch(termName)
	if m == nil {
		if form == domainForm {
			return nonWordChars.ReplaceAllString(strings.ToLower(termName), "")
		}
		return termName
	}
	y1, y2, word := m[1], m[2], m[3]

	abbr := word
	for _, a := range termAbbrs {
		if form == domainForm {
			abbr = a.re.ReplaceAllString(abbr, a.domain)
		} else {
			abbr = a.re.ReplaceAllString(abbr, a.display)
		}
	}

	year := y1
	if strings.Contains(word, "Spring") {
		year = y2
	}
	if len(year) > 2 {
		year = year[len(year)-2:]
	}
	return abbr + year
}

const domainAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = domainAlphabet[rand.IntN(len(domainAlphabet))]
	}
	return string(b)
}
