// Package pattern holds the compiled vocabularies and matchers shared by the
// noise filter, origin extractor and case key generator.
package pattern

import (
	"regexp"
	"sort"
	"strings"
)

// TaggedPattern is a regular expression labelled with the identifier kind it finds.
type TaggedPattern struct {
	Kind string
	Re   *regexp.Regexp
}

// DateOrder tells which field comes first in an all-numeric date.
type DateOrder int

const (
	AnyOrder DateOrder = iota
	MonthFirst
	DayFirst
)

// DateLayout is one date grammar. TwoDigitYear layouts get century resolution.
type DateLayout struct {
	Layout       string
	TwoDigitYear bool
	Order        DateOrder
}

// Library is the immutable set of vocabularies and compiled matchers. It is
// safe for concurrent use.
type Library struct {
	keywords            []string
	keywordPatterns     []TaggedPattern
	strongSignals       []TaggedPattern
	senderBlocklist     map[string]struct{}
	domainBlocklist     map[string]struct{}
	subjectBlockPhrases []string
	subjectPrefixes     []string
	quoteMarkers        []string
	quoteSeparator      *regexp.Regexp

	email      *regexp.Regexp
	fromLine   *regexp.Regexp
	sentLine   *regexp.Regexp
	inlineLine *regexp.Regexp

	dateLayouts      []DateLayout
	nameAliases      map[string]string
	weekdayHomonyms  map[string]string
	zoneOffsets      map[string]int
	dateFillers      map[string]struct{}
	monthFirstLabels map[string]struct{}

	caseIDs     []TaggedPattern
	partNumbers []*regexp.Regexp
	partToken   *regexp.Regexp
	stopwords   map[string]struct{}
	masterParts map[string]struct{}
}

var (
	defaultKeywords = []string{
		"ncmr", "rejection", "defect", "missing parts", "damage", "damaged",
		"scar", "dmr", "rtv", "non-conformance", "nonconformance",
		"corrective action", "cracking", "reject", "deficiency", "breaking",
		"wrong revision", "credit note", "supplier corrective action request",
		"rma", "return", "replacement", "rework",
	}

	defaultStrongSignals = []string{
		"ncmr", "scar", "dmr", "rma", "nonconformance", "non-conformance", "ncr", "car", "8d",
	}

	defaultSenderBlocklist = []string{
		"eminder@culturewise.com",
		"no-reply@culturewise.com",
	}

	defaultDomainBlocklist = []string{"culturewise.com"}

	defaultSubjectBlockPhrases = []string{
		"lesson of the week", "reminder:", "training", "newsletter",
		"guide to best practices", "best practices", "weekly update",
		"out of office", "automatic reply",
	}

	defaultSubjectPrefixes = []string{"re:", "fw:", "fwd:", "sv:", "答复:", "回复:", "aw:", "wg:", "r:"}

	defaultQuoteMarkers = []string{
		"-----Original Message-----",
		"\nFrom:", "\nSent:", "\nOn ",
		"________________________________",
		"Forwarded message", "Original Appointment",
	}

	defaultFromLabels = []string{"From", "De", "Von", "Van", "Da", "Från", "Fra"}

	defaultSentLabels = []string{
		"Sent", "Date", "Enviado el", "Enviado", "Fecha", "Verzonden",
		"Gesendet", "Envoyé", "Inviato", "Data", "Skickat", "Sendt",
	}

	defaultInlineLeads = []string{"On", "El", "Am", "Le", "Op", "Il", "Em"}
	defaultInlineVerbs = []string{"wrote", "escribió", "escribio", "schrieb", "a écrit", "schreef", "ha scritto", "escreveu"}

	defaultCaseIDs = []struct{ kind, expr string }{
		{"ncmr", `\bNCMR[\s:#-]*([0-9]{4}[\s./-]+[0-9]{3,6}|[0-9]{6,})`},
		{"scar", `\bSCAR[\s:#-]*([0-9]{4}[\s./-]+[0-9]{3,6}|[0-9]{5,})`},
		{"dmr", `\bDMR[\s:#-]*([0-9]{4}[\s./-]+[0-9]{3,6}|[0-9]{5,})`},
		{"ncr", `\bNCR[\s:#-]*([0-9]{3,})`},
		{"car", `\bCAR[\s:#-]*([0-9]{3,})`},
		{"po", `\bPO\s*(?:#|No\.?|Number)?\s*[:\-]?\s*([0-9]{5,})`},
		{"so", `\bSO\s*(?:#|No\.?|Number)?\s*[:\-]?\s*([0-9]{5,})`},
	}

	defaultPartNumbers = []string{
		`\bP\s*/?\s*N\s*(?:No\.?|#)?\s*[:\-]?\s*([A-Za-z0-9\-_./]{5,25})`,
		`\b(?:Part|Item|SKU)\s*(?:No\.?|Number|#)?\s*[:\-]?\s*([A-Za-z0-9\-_./]{5,25})`,
		`\bPN#?\s*[:\-]?\s*([A-Za-z0-9\-_./]{5,25})`,
	}

	defaultStopwords = []string{
		"or", "and", "ok", "re", "fw", "bs", "hn", "hi", "thanks", "regards",
		"am", "pm", "to", "on", "by", "in", "the", "for", "of", "a", "an", "it", "is",
		"number", "numbers",
	}

	// Matched against normalized phrases: English month names, no weekdays or commas.
	defaultDateLayouts = []DateLayout{
		{Layout: "January 2 2006 3:04:05 PM"},
		{Layout: "January 2 2006 3:04 PM"},
		{Layout: "January 2 2006 15:04:05 -0700"},
		{Layout: "January 2 2006 15:04:05"},
		{Layout: "January 2 2006 15:04"},
		{Layout: "2 January 2006 3:04:05 PM"},
		{Layout: "2 January 2006 3:04 PM"},
		{Layout: "2 January 2006 15:04:05 -0700"},
		{Layout: "2 January 2006 15:04:05"},
		{Layout: "2 January 2006 15:04"},
		{Layout: "1/2/2006 3:04:05 PM", Order: MonthFirst},
		{Layout: "1/2/2006 3:04 PM", Order: MonthFirst},
		{Layout: "1/2/2006 15:04:05", Order: MonthFirst},
		{Layout: "1/2/2006 15:04", Order: MonthFirst},
		{Layout: "1/2/06 3:04 PM", TwoDigitYear: true, Order: MonthFirst},
		{Layout: "1/2/06 15:04", TwoDigitYear: true, Order: MonthFirst},
		{Layout: "2/1/2006 3:04:05 PM", Order: DayFirst},
		{Layout: "2/1/2006 3:04 PM", Order: DayFirst},
		{Layout: "2/1/2006 15:04:05", Order: DayFirst},
		{Layout: "2/1/2006 15:04", Order: DayFirst},
		{Layout: "2/1/06 3:04 PM", TwoDigitYear: true, Order: DayFirst},
		{Layout: "2/1/06 15:04", TwoDigitYear: true, Order: DayFirst},
		{Layout: "2.1.2006 15:04:05"},
		{Layout: "2.1.2006 15:04"},
		{Layout: "2.1.06 15:04", TwoDigitYear: true},
		{Layout: "2-1-2006 15:04"},
		{Layout: "2006-01-02T15:04:05Z07:00"},
		{Layout: "2006-01-02 15:04:05 -0700"},
		{Layout: "2006-01-02 15:04:05"},
		{Layout: "2006-01-02 15:04"},
		{Layout: "January 2 2006"},
		{Layout: "2 January 2006"},
		{Layout: "1/2/2006", Order: MonthFirst},
		{Layout: "1/2/06", TwoDigitYear: true, Order: MonthFirst},
		{Layout: "2/1/2006", Order: DayFirst},
		{Layout: "2/1/06", TwoDigitYear: true, Order: DayFirst},
		{Layout: "2.1.2006"},
		{Layout: "2006-01-02"},
	}

	// Lowercased foreign month and weekday names mapped to English.
	defaultNameAliases = map[string]string{
		// English abbreviations
		"jan": "January", "feb": "February", "mar": "March", "apr": "April",
		"jun": "June", "jul": "July", "aug": "August", "sep": "September", "sept": "September",
		"oct": "October", "nov": "November", "dec": "December",
		"mon": "Monday", "tue": "Tuesday", "tues": "Tuesday", "wed": "Wednesday", "thu": "Thursday",
		"thur": "Thursday", "thurs": "Thursday", "fri": "Friday", "sat": "Saturday", "sun": "Sunday",
		// Spanish
		"enero": "January", "febrero": "February", "marzo": "March", "abril": "April",
		"mayo": "May", "junio": "June", "julio": "July", "agosto": "August",
		"septiembre": "September", "setiembre": "September", "octubre": "October",
		"noviembre": "November", "diciembre": "December",
		"lunes": "Monday", "martes": "Tuesday", "miércoles": "Wednesday", "miercoles": "Wednesday",
		"jueves": "Thursday", "viernes": "Friday", "sábado": "Saturday", "sabado": "Saturday", "domingo": "Sunday",
		"ene": "January", "abr": "April", "ago": "August", "dic": "December",
		"lun": "Monday", "mié": "Wednesday", "mie": "Wednesday", "jue": "Thursday", "vie": "Friday",
		"sáb": "Saturday", "sab": "Saturday", "dom": "Sunday",
		// German
		"januar": "January", "februar": "February", "märz": "March", "maerz": "March",
		"mai": "May", "juni": "June", "juli": "July", "oktober": "October", "dezember": "December",
		"montag": "Monday", "dienstag": "Tuesday", "mittwoch": "Wednesday", "donnerstag": "Thursday",
		"freitag": "Friday", "samstag": "Saturday", "sonntag": "Sunday",
		"mär": "March", "mrz": "March", "okt": "October", "dez": "December",
		"mo": "Monday", "di": "Tuesday", "mi": "Wednesday", "do": "Thursday", "fr": "Friday",
		"sa": "Saturday", "so": "Sunday",
		// Dutch
		"januari": "January", "februari": "February", "maart": "March", "mei": "May",
		"augustus": "August",
		"maandag":  "Monday", "dinsdag": "Tuesday", "woensdag": "Wednesday", "donderdag": "Thursday",
		"vrijdag": "Friday", "zaterdag": "Saturday", "zondag": "Sunday",
		"mrt": "March", "ma": "Monday", "wo": "Wednesday", "vr": "Friday", "za": "Saturday", "zo": "Sunday",
		// French
		"janvier": "January", "février": "February", "fevrier": "February", "mars": "March",
		"avril": "April", "juin": "June", "juillet": "July", "août": "August", "aout": "August",
		"septembre": "September", "octobre": "October", "novembre": "November", "décembre": "December",
		"lundi": "Monday", "mardi": "Tuesday", "mercredi": "Wednesday", "jeudi": "Thursday",
		"vendredi": "Friday", "samedi": "Saturday", "dimanche": "Sunday",
		"janv": "January", "févr": "February", "fevr": "February", "avr": "April", "juil": "July",
		"déc": "December", "mer": "Wednesday", "jeu": "Thursday", "ven": "Friday", "sam": "Saturday",
		"dim": "Sunday",
		// Italian
		"gennaio": "January", "febbraio": "February", "aprile": "April", "maggio": "May",
		"giugno": "June", "luglio": "July", "settembre": "September", "ottobre": "October",
		"dicembre": "December",
		"lunedì":   "Monday", "martedì": "Tuesday", "mercoledì": "Wednesday", "giovedì": "Thursday",
		"venerdì": "Friday",
		"gen":     "January", "mag": "May", "giu": "June", "lug": "July", "ott": "October", "gio": "Thursday",
	}

	// Month abbreviations that are also a weekday ("mar" is martes/mardi).
	defaultWeekdayHomonyms = map[string]string{"mar": "Tuesday"}

	// Zone abbreviations seen after mail timestamps, as seconds east of UTC.
	defaultZoneOffsets = map[string]int{
		"UTC": 0, "GMT": 0, "Z": 0,
		"EST": -5 * 3600, "EDT": -4 * 3600, "CST": -6 * 3600, "CDT": -5 * 3600,
		"MST": -7 * 3600, "MDT": -6 * 3600, "PST": -8 * 3600, "PDT": -7 * 3600,
		"BST": 1 * 3600, "CET": 1 * 3600, "CEST": 2 * 3600, "MEZ": 1 * 3600, "MESZ": 2 * 3600,
		"JST": 9 * 3600, "KST": 9 * 3600, "AEST": 10 * 3600,
	}

	defaultDateFillers = []string{"uhr", "o'clock", "hrs"}

	// Labels and leads whose numeric dates are month first.
	defaultMonthFirstLabels = []string{"sent", "date", "on"}
)

// Default returns the built-in library.
func Default() *Library {
	l, err := build(Overrides{})
	if err != nil {
		panic(err)
	}
	return l
}

// New returns the built-in library extended with o.
func New(o Overrides) (*Library, error) {
	return build(o)
}

func build(o Overrides) (*Library, error) {
	l := &Library{
		keywords:            lowerUnique(defaultKeywords, o.Keywords),
		senderBlocklist:     toSet(defaultSenderBlocklist, o.SenderBlocklist),
		domainBlocklist:     toSet(defaultDomainBlocklist, o.DomainBlocklist),
		subjectBlockPhrases: lowerUnique(defaultSubjectBlockPhrases, o.SubjectBlockPhrases),
		subjectPrefixes:     lowerUnique(defaultSubjectPrefixes, nil),
		quoteMarkers:        append([]string(nil), defaultQuoteMarkers...),
		quoteSeparator:      regexp.MustCompile(`\n-{5,}\s*\n`),
		email:               regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`),
		fromLine:            labelLine(defaultFromLabels),
		sentLine:            labelLine(defaultSentLabels),
		inlineLine:          inlineReply(defaultInlineLeads, defaultInlineVerbs),
		dateLayouts:         append([]DateLayout(nil), defaultDateLayouts...),
		nameAliases:         defaultNameAliases,
		weekdayHomonyms:     defaultWeekdayHomonyms,
		zoneOffsets:         defaultZoneOffsets,
		dateFillers:         toSet(defaultDateFillers, nil),
		monthFirstLabels:    toSet(defaultMonthFirstLabels, nil),
		partToken:           regexp.MustCompile(`^[A-Za-z0-9\-_./]{5,25}$`),
		stopwords:           toSet(defaultStopwords, o.Stopwords),
		masterParts:         make(map[string]struct{}),
	}

	for _, sig := range lowerUnique(defaultStrongSignals, o.StrongSignals) {
		re, err := regexp.Compile(`(?i)(?:^|[^a-z0-9])` + regexp.QuoteMeta(sig) + `(?:$|[^a-z0-9])`)
		if err != nil {
			return nil, err
		}
		l.strongSignals = append(l.strongSignals, TaggedPattern{Kind: sig, Re: re})
	}

	// Whole words, with an optional inflection suffix.
	for _, kw := range l.keywords {
		re, err := regexp.Compile(`(?i)(?:^|[^a-z0-9])` + regexp.QuoteMeta(kw) + `(?:s|es|d|ed|ing|ive|ion|ions)?(?:$|[^a-z0-9])`)
		if err != nil {
			return nil, err
		}
		l.keywordPatterns = append(l.keywordPatterns, TaggedPattern{Kind: kw, Re: re})
	}

	for _, c := range defaultCaseIDs {
		l.caseIDs = append(l.caseIDs, TaggedPattern{Kind: c.kind, Re: regexp.MustCompile(`(?i)` + c.expr)})
	}

	for _, expr := range defaultPartNumbers {
		l.partNumbers = append(l.partNumbers, regexp.MustCompile(`(?i)`+expr))
	}

	for _, pn := range o.MasterParts {
		if n := NormalizePartNumber(pn); n != "" {
			l.masterParts[n] = struct{}{}
		}
	}

	return l, nil
}

// labelLine matches "Label: value" lines, tolerating quote prefixes, bold
// markers, and a space before the colon. Group 1 is the label, group 2 the value.
func labelLine(labels []string) *regexp.Regexp {
	alts := make([]string, 0, len(labels))
	for _, lbl := range byLength(labels) {
		alts = append(alts, regexp.QuoteMeta(lbl))
	}
	return regexp.MustCompile(`(?i)^[\s>]*\*{0,2}(` + strings.Join(alts, "|") + `)\*{0,2}\s*:\*{0,2}\s*(.*)$`)
}

// inlineReply matches "On <phrase> wrote:" and "On <date> wrote <sender>:"
// attributions. The phrase may wrap onto a second line. Groups: 1 lead word,
// 2 phrase, 3 text between verb and colon, 4 rest of the line.
func inlineReply(leads, verbs []string) *regexp.Regexp {
	l := make([]string, 0, len(leads))
	for _, s := range leads {
		l = append(l, regexp.QuoteMeta(s))
	}
	v := make([]string, 0, len(verbs))
	for _, s := range byLength(verbs) {
		v = append(v, regexp.QuoteMeta(s))
	}
	return regexp.MustCompile(`(?im)^[ \t>]*(` + strings.Join(l, "|") + `)\s+([^\n]{1,300}?(?:\n[ \t>]*[^\n]{1,300}?)?)\s+(?:` +
		strings.Join(v, "|") + `)((?:[ \t][^\n:]{0,200})?):([^\n]*)`)
}

func byLength(in []string) []string {
	out := append([]string(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func lowerUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func toSet(base, extra []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range lowerUnique(base, extra) {
		set[s] = struct{}{}
	}
	return set
}

// Keywords returns the quality vocabulary, lowercased.
func (l *Library) Keywords() []string { return l.keywords }

// KeywordPatterns returns the word-bounded keyword matchers, one per keyword.
func (l *Library) KeywordPatterns() []TaggedPattern { return l.keywordPatterns }

// StrongSignals returns the word-bounded high-confidence identifier patterns.
func (l *Library) StrongSignals() []TaggedPattern { return l.strongSignals }

// SubjectBlockPhrases returns the disqualifying subject phrases, lowercased.
func (l *Library) SubjectBlockPhrases() []string { return l.subjectBlockPhrases }

// IsBlockedSender reports whether address is on the sender blocklist.
func (l *Library) IsBlockedSender(address string) bool {
	_, ok := l.senderBlocklist[strings.ToLower(strings.TrimSpace(address))]
	return ok
}

// IsBlockedDomain reports whether domain, or any parent of it, is blocklisted.
func (l *Library) IsBlockedDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for domain != "" {
		if _, ok := l.domainBlocklist[domain]; ok {
			return true
		}
		i := strings.Index(domain, ".")
		if i < 0 {
			return false
		}
		domain = domain[i+1:]
	}
	return false
}

// CaseIDPatterns returns the ordered external identifier patterns.
func (l *Library) CaseIDPatterns() []TaggedPattern { return l.caseIDs }

// PartNumberPatterns returns the part number label patterns; group 1 is the token.
func (l *Library) PartNumberPatterns() []*regexp.Regexp { return l.partNumbers }

// IsStopword reports whether token is a stopword.
func (l *Library) IsStopword(token string) bool {
	_, ok := l.stopwords[strings.ToLower(token)]
	return ok
}

// ValidPartToken checks the allowed alphabet, length, and mixed letters/digits.
func (l *Library) ValidPartToken(token string) bool {
	if token == "" || l.IsStopword(token) || !l.partToken.MatchString(token) {
		return false
	}
	var digit, letter bool
	for _, r := range token {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letter = true
		}
	}
	return digit && letter
}

// IsMasterPart reports whether the normalized part number is in the master list.
func (l *Library) IsMasterPart(normalized string) bool {
	_, ok := l.masterParts[normalized]
	return ok
}

// HasMasterParts reports whether a master list was loaded.
func (l *Library) HasMasterParts() bool { return len(l.masterParts) > 0 }

// Email returns the address matcher.
func (l *Library) Email() *regexp.Regexp { return l.email }

// FromLine matches a "From:" header line; group 1 is the label, group 2 the value.
func (l *Library) FromLine() *regexp.Regexp { return l.fromLine }

// SentLine matches a "Sent:"/"Date:" header line; group 1 is the label, group 2 the value.
func (l *Library) SentLine() *regexp.Regexp { return l.sentLine }

// InlineReply matches inline attributions; see inlineReply for the groups.
func (l *Library) InlineReply() *regexp.Regexp { return l.inlineLine }

// DateLayouts returns the prioritized date grammars.
func (l *Library) DateLayouts() []DateLayout { return l.dateLayouts }

// TranslateName maps a foreign or abbreviated month or weekday name to the
// full English name.
func (l *Library) TranslateName(word string) (string, bool) {
	en, ok := l.nameAliases[strings.ToLower(word)]
	return en, ok
}

// WeekdayHomonym returns the weekday an ambiguous abbreviation stands for
// when it is not the month.
func (l *Library) WeekdayHomonym(word string) (string, bool) {
	en, ok := l.weekdayHomonyms[strings.ToLower(word)]
	return en, ok
}

// ZoneOffset resolves an uppercase zone abbreviation such as EST.
func (l *Library) ZoneOffset(abbr string) (int, bool) {
	off, ok := l.zoneOffsets[abbr]
	return off, ok
}

// IsDateFiller reports words like "Uhr" that carry no date information.
func (l *Library) IsDateFiller(word string) bool {
	_, ok := l.dateFillers[strings.ToLower(word)]
	return ok
}

// DayFirst reports whether a sent label or inline lead word belongs to a
// locale that writes numeric dates day first.
func (l *Library) DayFirst(label string) bool {
	_, monthFirst := l.monthFirstLabels[strings.ToLower(strings.TrimSpace(label))]
	return !monthFirst
}

// CleanSubject strips any number of leading reply/forward prefixes.
func (l *Library) CleanSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		low := strings.ToLower(s)
		trimmed := false
		for _, p := range l.subjectPrefixes {
			if strings.HasPrefix(low, p) {
				s = strings.TrimSpace(s[len(p):])
				trimmed = true
				break
			}
		}
		if !trimmed {
			return s
		}
	}
}

// LatestReply cuts text at the earliest quote marker or dashed separator.
func (l *Library) LatestReply(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	cut := len(text)
	for _, m := range l.quoteMarkers {
		if i := strings.Index(text, m); i >= 0 && i < cut {
			cut = i
		}
	}
	if loc := l.quoteSeparator.FindStringIndex(text); loc != nil && loc[0] < cut {
		cut = loc[0]
	}
	return strings.TrimSpace(text[:cut])
}

// QuotedTail returns what LatestReply cut away.
func (l *Library) QuotedTail(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	latest := l.LatestReply(text)
	i := strings.Index(text, latest)
	if latest == "" || i < 0 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[i+len(latest):])
}

// NormalizePartNumber uppercases and drops characters outside [A-Z0-9-_./].
func NormalizePartNumber(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '/' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Alnum keeps only uppercase letters and digits.
func Alnum(s string) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
