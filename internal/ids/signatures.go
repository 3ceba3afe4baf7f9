package ids

import (
	"regexp"
	"sync/atomic"
)

var xssPatterns = []*regexp.Regexp{
	// simple tag
	regexp.MustCompile(`(?i)((%3C)|<)((%2F)|/)*[a-z0-9%]+((%3E)|>)`),
	// img tag
	regexp.MustCompile(`(?i)((%3C)|<)((%69)|i|(%49))((%6D)|m|(%4D))((%67)|g|(%47))[^\n]+((%3E)|>)`),
	// any tag
	regexp.MustCompile(`(?i)((%3C)|<)[^\n]+((%3E)|>)`),
	// encoded quote
	regexp.MustCompile(`(?i)(%22)(%20)*[a-z0-9=%22]*`),
	// attribute injection
	regexp.MustCompile(`(?i)" [a-z]*="`),
}

var sqliPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(((%3D)|(=))[^\n]*((%27)|(')|(--)|(%3B)|(;)))|(\w*((%27)|('))((%6F)|o|(%4F))((%72)|r|(%52)))|(((%27)|('))union)|(exec(\s|\+)+(s|x)p\w+)|(UNION(\s+ALL)?\s+SELECT)`),
}

// Scanner matches request text against fixed injection signatures.
type Scanner struct {
	scans atomic.Uint64
}

// Scan tests url and body and returns the matching finding, or nil.
// XSS signatures are tried before SQLi ones.
func (s *Scanner) Scan(url string, body []byte) *Finding {
	s.scans.Add(1)

	text := string(body)
	for _, re := range xssPatterns {
		if re.MatchString(url) || re.MatchString(text) {
			return &Finding{Stage: StageSignature, Msg: MsgXSS, Strike: Malicious}
		}
	}
	for _, re := range sqliPatterns {
		if re.MatchString(url) || re.MatchString(text) {
			return &Finding{Stage: StageSignature, Msg: MsgSQLi, Strike: Malicious}
		}
	}
	return nil
}

// Scans returns how many times Scan has run.
func (s *Scanner) Scans() uint64 {
	return s.scans.Load()
}
