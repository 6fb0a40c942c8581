// Package extract pulls validated email addresses out of page content.
package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultEmailLimit = 30
	maxEmailLength    = 320
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9_.+%-]+@(?:[a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}`)
	mailtoPattern = regexp.MustCompile(`(?i)^mailto:`)

	// Common textual obfuscations, normalized before pattern matching.
	// Best effort only; exotic schemes are out of scope.
	deobfuscations = []struct {
		pattern *regexp.Regexp
		repl    string
	}{
		{regexp.MustCompile(`(?i)\[at\]|\(at\)|\{at\}`), "@"},
		{regexp.MustCompile(`(?i)\[dot\]|\(dot\)|\{dot\}`), "."},
		{regexp.MustCompile(`(?i)&commat;|&#64;`), "@"},
		{regexp.MustCompile(`&#46;`), "."},
		{regexp.MustCompile(`(?i)\s+at\s+`), "@"},
		{regexp.MustCompile(`(?i)\s+dot\s+`), "."},
	}

	// Throwaway inbox providers filtered from results.
	builtinDisposable = []string{
		"mailinator.com",
		"10minutemail.com",
		"tempmail.com",
		"guerrillamail.com",
		"trashmail.com",
		"yopmail.com",
	}
)

// Config tunes extraction behavior.
type Config struct {
	// EmailLimit caps how many addresses a single page may contribute
	// (default 30).
	EmailLimit int
	// DisposableDomains extends the built-in throwaway domain filter.
	DisposableDomains []string
}

// Extractor scans text and markup for email addresses. It is stateless and
// safe for concurrent use.
type Extractor struct {
	limit      int
	disposable map[string]struct{}
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	limit := cfg.EmailLimit
	if limit <= 0 {
		limit = defaultEmailLimit
	}
	disposable := make(map[string]struct{}, len(builtinDisposable)+len(cfg.DisposableDomains))
	for _, d := range builtinDisposable {
		disposable[strings.ToLower(d)] = struct{}{}
	}
	for _, d := range cfg.DisposableDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			disposable[d] = struct{}{}
		}
	}
	return &Extractor{limit: limit, disposable: disposable}
}

// Extract returns the validated addresses found in content, first-seen order,
// deduplicated case-insensitively with the domain part lowercased. It never
// returns an error; no matches yields an empty slice.
func (e *Extractor) Extract(content string) []string {
	return e.collect(newDedupeSet(e), content).emails()
}

// ExtractPage scans rendered or raw HTML: mailto hrefs first the way a
// visitor would reach them, then the full markup (which covers visible text,
// attributes, and embedded JSON such as ld+json script bodies).
func (e *Extractor) ExtractPage(markup string) []string {
	set := newDedupeSet(e)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			for _, addr := range mailtoAddresses(href) {
				set.add(addr)
			}
		})
	}
	return e.collect(set, markup).emails()
}

// PageText returns the visible text of markup for content-size heuristics.
// Unparseable markup falls back to the raw string.
func PageText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Text())
}

func (e *Extractor) collect(set *dedupeSet, content string) *dedupeSet {
	if content == "" {
		return set
	}
	for _, d := range deobfuscations {
		content = d.pattern.ReplaceAllString(content, d.repl)
	}
	for _, match := range emailPattern.FindAllString(content, -1) {
		set.add(match)
	}
	return set
}

func mailtoAddresses(href string) []string {
	if !mailtoPattern.MatchString(href) {
		return nil
	}
	addr := mailtoPattern.ReplaceAllString(href, "")
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	if unescaped, err := url.QueryUnescape(addr); err == nil {
		addr = unescaped
	}
	var out []string
	for _, part := range strings.Split(addr, ",") {
		if candidate := emailPattern.FindString(part); candidate != "" {
			out = append(out, candidate)
		}
	}
	return out
}

// dedupeSet keeps first-seen order while folding case on the whole address.
// The domain half is emitted lowercase; the local part keeps the spelling it
// was first seen with.
type dedupeSet struct {
	owner *Extractor
	seen  map[string]struct{}
	out   []string
}

func newDedupeSet(owner *Extractor) *dedupeSet {
	return &dedupeSet{owner: owner, seen: make(map[string]struct{})}
}

func (s *dedupeSet) add(candidate string) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || len(candidate) >= maxEmailLength {
		return
	}
	at := strings.LastIndexByte(candidate, '@')
	if at <= 0 || at == len(candidate)-1 {
		return
	}
	local, domain := candidate[:at], strings.ToLower(candidate[at+1:])
	if !strings.Contains(domain, ".") {
		return
	}
	if _, blocked := s.owner.disposable[domain]; blocked {
		return
	}
	key := strings.ToLower(local) + "@" + domain
	if _, dup := s.seen[key]; dup {
		return
	}
	if len(s.out) >= s.owner.limit {
		return
	}
	s.seen[key] = struct{}{}
	s.out = append(s.out, local+"@"+domain)
}

func (s *dedupeSet) emails() []string {
	if s.out == nil {
		return []string{}
	}
	return s.out
}
