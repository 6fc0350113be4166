package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/klcheung/alertledger/internal/models"
)

// Grammar names, also recorded on events and order notes.
const (
	GrammarEmbed     = "embed"
	GrammarLabel     = "label"
	GrammarBTO       = "bto"
	GrammarSTC       = "stc"
	GrammarNarrative = "narrative"
	GrammarCompact   = "compact"
)

// Grammar is one format recognizer: a pure function from message text and
// optional embeds to zero-or-one candidate event.
type Grammar struct {
	Name    string
	Attempt func(text string, embeds []models.Embed) *Event
}

// Set evaluates its grammars in fixed priority order and returns the first
// candidate. Structured embeds outrank every free-text format because their
// fields are unambiguous.
type Set struct {
	grammars []Grammar
	now      func() time.Time
}

// NewSet builds the default grammar set. The clock resolves year-less
// expiration dates; nil means time.Now.
func NewSet(now func() time.Time) *Set {
	if now == nil {
		now = time.Now
	}
	s := &Set{now: now}
	s.grammars = []Grammar{
		{Name: GrammarEmbed, Attempt: s.attemptEmbed},
		{Name: GrammarLabel, Attempt: s.attemptLabel},
		{Name: GrammarBTO, Attempt: s.attemptBTO},
		{Name: GrammarSTC, Attempt: s.attemptSTC},
		{Name: GrammarNarrative, Attempt: s.attemptNarrative},
		{Name: GrammarCompact, Attempt: s.attemptCompact},
	}
	return s
}

// Evaluate runs the grammars against one message and returns the first
// candidate event, or nil when no format recognizes the message.
func (s *Set) Evaluate(msg models.Message) *Event {
	text := cleanContent(msg.Content)
	for _, g := range s.grammars {
		if ev := g.Attempt(text, msg.Embeds); ev != nil {
			ev.Grammar = g.Name
			return ev
		}
	}
	return nil
}

// blockedTickers are channel/system names that must never be mistaken for a
// ticker when they appear in a message header.
var blockedTickers = map[string]struct{}{
	"OCULUS": {}, "DISCORD": {}, "TELEGRAM": {}, "SIGNAL": {},
	"TRADING": {}, "ALERT": {}, "NOTIFY": {},
}

func tickerAllowed(ticker string) bool {
	_, blocked := blockedTickers[ticker]
	return !blocked
}

// sharePrefixRe strips the re-share header some channels prepend.
var sharePrefixRe = regexp.MustCompile(`(?i)DayTrade分享\s*[-–]\s*期權\s*:?\s*`)

func cleanContent(content string) string {
	return strings.TrimSpace(sharePrefixRe.ReplaceAllString(content, ""))
}

var (
	// Compact one-line layout: "SPY 02/10 693P @.76 (Light entry)".
	// Anchored form for plain text, unanchored for embed descriptions.
	compactLineRe   = regexp.MustCompile(`(?i)^\s*([A-Z]{2,})\s+(\d{1,2})/(\d{1,2})\s+(\d+(?:\.\d+)?)([pc])\s*(?:@\s*\$?(\d*\.?\d+))?\s*(?:\(([^)]*)\))?`)
	compactSearchRe = regexp.MustCompile(`(?i)([A-Z]{2,})\s+(\d{1,2})/(\d{1,2})\s+(\d+(?:\.\d+)?)([pc])\s*(?:@\s*\$?(\d*\.?\d+))?\s*(?:\(([^)]*)\))?`)
	signedPctRe     = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)\s*%`)
	allOutRe        = regexp.MustCompile(`(?i)all\s*out\s*@?\s*\$?(\d*\.?\d+)`)

	// Pipe-field card layout, bilingual: "Ticker | $SPX" / "行权价 | 6980C".
	pipeTickerRe = regexp.MustCompile(`(?i)(?:Ticker|股票代码)\s*\|\s*\$?([A-Z]{2,})`)
	pipeStrikeRe = regexp.MustCompile(`(?i)(?:Strike|行权价)\s*\|\s*(\d+(?:\.\d+)?)([pc])`)
	pipeEntryRe  = regexp.MustCompile(`(?i)(?:Entry|入场|入場)\s*\|\s*\$?(\d*\.?\d+)`)
	pipeExpiryRe = regexp.MustCompile(`(?i)(?:Expiry|到期日)\s*\|\s*(\d{1,2}/\d{1,2}(?:/\d{2,4})?|0dte)`)

	// Label free-text layout, bilingual, fields on any lines in any order.
	labelTickerRe = regexp.MustCompile(`(?i)(?:Ticker|股票代码)\s*[:=]?\s*\$?([A-Z]{2,})`)
	labelStrikeRe = regexp.MustCompile(`(?i)(?:Strike|行权价)\s*[:=]?\s*(\d+(?:\.\d+)?)([pc])`)
	labelEntryRe  = regexp.MustCompile(`(?i)(?:Entry|入场|入場)\s*[:=]?\s*\$?(\d*\.?\d+)`)
	labelExpiryRe = regexp.MustCompile(`(?i)(?:Expiry|到期日)\s*[:=]?\s*(\d{1,2}/\d{1,2}(?:/\d{2,4})?|0dte)`)
	lottoRe       = regexp.MustCompile(`(?i)lotto|彩票`)

	// Shorthand command layouts: "BTO $QQQ 613p 02/10 @0.69".
	btoLineRe = regexp.MustCompile(`(?i)^\s*(?:BTO|buy to open)\s+\$?([A-Z]+)\s+(\d+(?:\.\d+)?)([pc])\s+(\d{1,2}/\d{1,2}(?:/\d{2,4})?)\s*@?\$?(\d*\.?\d+)`)
	stcLineRe = regexp.MustCompile(`(?i)^\s*(?:STC|平倉|賣出)\s+\$?([A-Z]+)\s+(\d+(?:\.\d+)?)([pc])\s+(\d{1,2}/\d{1,2}(?:/\d{2,4})?)\s*@?\$?(\d*\.?\d+)`)

	// Narrative profit/loss notifications: "QQQ 最高+178%", "QQQ 我止损了".
	profitNoticeRe = regexp.MustCompile(`(?i)^\s*([A-Z]+)\s*(?:最高|止盈|平倉|獲利)[^\d]*\+?(\d*\.?\d+)%?`)
	lossNoticeRe   = regexp.MustCompile(`(?i)^\s*([A-Z]+)\s*(?:我)?\s*(?:止损|止損|停損|虧損|亏损)`)
)

// attemptEmbed handles structured attachments: the broker embed layout keyed
// by its footer, and the bilingual pipe-field card (which some relays flatten
// into plain text).
func (s *Set) attemptEmbed(text string, embeds []models.Embed) *Event {
	for _, e := range embeds {
		if ev := s.attemptBrokerEmbed(e); ev != nil {
			return ev
		}
	}

	// Pipe-field card: look inside embed fields first, then the raw text.
	for _, e := range embeds {
		if ev := s.attemptPipeCard(flattenEmbed(e)); ev != nil {
			return ev
		}
	}
	return s.attemptPipeCard(text)
}

func flattenEmbed(e models.Embed) string {
	var b strings.Builder
	b.WriteString(e.Title)
	b.WriteString("\n")
	b.WriteString(e.Description)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "\n%s | %s", f.Name, f.Value)
	}
	b.WriteString("\n")
	b.WriteString(e.Footer)
	return b.String()
}

// attemptBrokerEmbed parses the broker-specific embed: title carries the
// action (Open/Update/Close), description the compact contract line.
func (s *Set) attemptBrokerEmbed(e models.Embed) *Event {
	marker := strings.ToLower(e.Footer + " " + e.Title)
	if !strings.Contains(marker, "jpm") {
		return nil
	}

	m := compactSearchRe.FindStringSubmatch(e.Description)
	if m == nil {
		return nil
	}
	key, ok := parseContract(m[1], m[4], m[5])
	if !ok {
		return nil
	}

	descLower := strings.ToLower(e.Description)
	action := ActionOpen
	switch title := strings.ToLower(strings.TrimSpace(e.Title)); {
	case strings.Contains(title, "close"):
		action = ActionClose
	case strings.Contains(title, "update"):
		action = ActionUpdate
	case strings.Contains(title, "open"):
		action = ActionOpen
	case strings.Contains(descLower, "all out") || strings.Contains(descLower, "平倉"):
		action = ActionClose
	case strings.Contains(e.Description, "+") && strings.Contains(e.Description, "%"):
		action = ActionUpdate
	}

	price := parsePrice(m[6])
	annotation := strings.TrimSpace(m[7])
	pnl := parseSignedPct(e.Description)

	ev := &Event{
		Action:        action,
		Ticker:        key.Ticker,
		Strike:        key.Strike,
		Kind:          key.Kind,
		HasInstrument: true,
		Expiration:    s.compactExpiration(m[2], m[3]),
		PnLPercent:    pnl,
		Notes:         annotation,
	}

	switch action {
	case ActionOpen:
		// An open without an entry price is not actionable.
		if price == nil {
			return nil
		}
		ev.Price = price
	case ActionUpdate:
		// The @price on an update is the current price, never a new entry.
		ev.Price = price
	case ActionClose:
		ev.ExitPrice = price
		if exit := parseAllOut(e.Description); exit != nil {
			ev.ExitPrice = exit
		}
	}
	return ev
}

// attemptPipeCard parses the pipe-field open card.
func (s *Set) attemptPipeCard(text string) *Event {
	tm := pipeTickerRe.FindStringSubmatch(text)
	sm := pipeStrikeRe.FindStringSubmatch(text)
	if tm == nil || sm == nil {
		return nil
	}
	key, ok := parseContract(tm[1], sm[1], sm[2])
	if !ok {
		return nil
	}

	ev := &Event{
		Action:        ActionOpen,
		Ticker:        key.Ticker,
		Strike:        key.Strike,
		Kind:          key.Kind,
		HasInstrument: true,
		Expiration:    "N/A",
	}
	if em := pipeEntryRe.FindStringSubmatch(text); em != nil {
		ev.Price = parsePrice(em[1])
	}
	if xm := pipeExpiryRe.FindStringSubmatch(text); xm != nil {
		ev.Expiration = normalizeExpiry(xm[1], &ev.Notes)
	}
	markLotto(text, ev)
	return ev
}

// attemptLabel assembles the bilingual label format from independently
// located sub-matches; ticker and strike are required, the rest optional.
func (s *Set) attemptLabel(text string, _ []models.Embed) *Event {
	tm := labelTickerRe.FindStringSubmatch(text)
	if tm == nil {
		return nil
	}
	sm := labelStrikeRe.FindStringSubmatch(text)
	if sm == nil {
		return nil
	}
	key, ok := parseContract(tm[1], sm[1], sm[2])
	if !ok {
		return nil
	}

	ev := &Event{
		Action:        ActionOpen,
		Ticker:        key.Ticker,
		Strike:        key.Strike,
		Kind:          key.Kind,
		HasInstrument: true,
		Expiration:    "N/A",
	}
	if em := labelEntryRe.FindStringSubmatch(text); em != nil {
		ev.Price = parsePrice(em[1])
	}
	if xm := labelExpiryRe.FindStringSubmatch(text); xm != nil {
		ev.Expiration = normalizeExpiry(xm[1], &ev.Notes)
	}
	markLotto(text, ev)
	return ev
}

func (s *Set) attemptBTO(text string, _ []models.Embed) *Event {
	return s.attemptShorthand(btoLineRe, ActionOpen, text)
}

func (s *Set) attemptSTC(text string, _ []models.Embed) *Event {
	return s.attemptShorthand(stcLineRe, ActionClose, text)
}

// attemptShorthand parses the one-line command formats, which share a shape:
// marker, ticker, strike+kind, expiration, price.
func (s *Set) attemptShorthand(re *regexp.Regexp, action Action, text string) *Event {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	key, ok := parseContract(m[1], m[2], m[3])
	if !ok {
		return nil
	}
	price := parsePrice(m[5])
	if price == nil {
		return nil
	}

	ev := &Event{
		Action:        action,
		Ticker:        key.Ticker,
		Strike:        key.Strike,
		Kind:          key.Kind,
		HasInstrument: true,
		Expiration:    m[4],
	}
	if action == ActionClose {
		ev.ExitPrice = price
		ev.Notes = "sell to close (STC)"
	} else {
		ev.Price = price
		ev.Notes = "buy to open (BTO)"
	}
	return ev
}

// attemptNarrative handles profit/loss notifications that name a ticker only.
// A win keyword carries a percentage; a loss keyword carries none and the
// engine substitutes its configured fixed loss.
func (s *Set) attemptNarrative(text string, _ []models.Embed) *Event {
	if m := profitNoticeRe.FindStringSubmatch(text); m != nil {
		ticker := strings.ToUpper(m[1])
		pnl := parsePrice(m[2])
		if tickerAllowed(ticker) && pnl != nil {
			return &Event{
				Action:     ActionClose,
				Ticker:     ticker,
				PnLPercent: pnl,
				Notes:      fmt.Sprintf("take-profit notice, PnL +%s%%", m[2]),
			}
		}
	}
	if m := lossNoticeRe.FindStringSubmatch(text); m != nil {
		ticker := strings.ToUpper(m[1])
		if tickerAllowed(ticker) {
			return &Event{
				Action:      ActionClose,
				Ticker:      ticker,
				AssumedLoss: true,
				Notes:       "stop-loss notice",
			}
		}
	}
	return nil
}

// attemptCompact parses the compact one-liner in plain text. Whether it opens
// or updates depends on ledger state the parser cannot see, so it emits
// open-or-update unless the message is explicitly a close.
func (s *Set) attemptCompact(text string, _ []models.Embed) *Event {
	m := compactLineRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	key, ok := parseContract(m[1], m[4], m[5])
	if !ok {
		return nil
	}

	price := parsePrice(m[6])
	annotation := strings.TrimSpace(m[7])
	lower := strings.ToLower(text)
	isClose := strings.Contains(lower, "close") || strings.Contains(lower, "all out")

	ev := &Event{
		Ticker:        key.Ticker,
		Strike:        key.Strike,
		Kind:          key.Kind,
		HasInstrument: true,
		Expiration:    s.compactExpiration(m[2], m[3]),
		PnLPercent:    parseSignedPct(annotation),
		Notes:         annotation,
	}
	if isClose {
		ev.Action = ActionClose
		ev.ExitPrice = price
		if exit := parseAllOut(text); exit != nil {
			ev.ExitPrice = exit
		}
	} else {
		ev.Action = ActionOpenOrUpdate
		ev.Price = price
	}
	return ev
}

// parseContract validates and assembles the (ticker, strike, kind) triple
// every instrument-bearing grammar extracts.
func parseContract(ticker, strike, kind string) (models.InstrumentKey, bool) {
	t := strings.ToUpper(ticker)
	if !tickerAllowed(t) {
		return models.InstrumentKey{}, false
	}
	s, err := strconv.ParseFloat(strike, 64)
	if err != nil {
		return models.InstrumentKey{}, false
	}
	k, err := models.ParseOptionKind(kind)
	if err != nil {
		return models.InstrumentKey{}, false
	}
	return models.InstrumentKey{Ticker: t, Strike: s, Kind: k}, true
}

func parsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return floatPtr(v)
}

func parseSignedPct(s string) *float64 {
	m := signedPctRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return parsePrice(strings.TrimPrefix(m[1], "+"))
}

func parseAllOut(s string) *float64 {
	m := allOutRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return parsePrice(m[1])
}

// normalizeExpiry maps a matched expiry field to the stored free-text form,
// annotating same-day contracts.
func normalizeExpiry(raw string, notes *string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "0dte") {
		if *notes == "" {
			*notes = "0DTE - expires today"
		}
		return "0dte (expires today)"
	}
	return strings.TrimSpace(raw)
}

func markLotto(text string, ev *Event) {
	if lottoRe.MatchString(text) {
		if ev.Notes != "" {
			ev.Notes += " | "
		}
		ev.Notes += "lotto (high risk)"
	}
}

// compactExpiration renders month/day captures as M/D/YY in the current year.
func (s *Set) compactExpiration(month, day string) string {
	m, err1 := strconv.Atoi(month)
	d, err2 := strconv.Atoi(day)
	if err1 != nil || err2 != nil {
		return "N/A"
	}
	return fmt.Sprintf("%d/%d/%02d", m, d, s.now().Year()%100)
}
