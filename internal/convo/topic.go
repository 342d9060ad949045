package convo

import (
	"regexp"
	"strings"
)

// Topic-change detection: a message that reads like a fresh question and
// shares almost no vocabulary with the anchored complaint is treated as a new
// topic, and the session resets before the turn is routed.

var tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// interrogatives are the words that mark a question-shaped opening.
var interrogatives = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "whom": {},
	"whose": {}, "why": {}, "how": {}, "can": {}, "could": {}, "would": {},
	"will": {}, "shall": {}, "do": {}, "does": {}, "did": {}, "is": {}, "are": {},
}

// topicOverlap is the token-overlap fraction below which a question-shaped
// message counts as a topic change.
const topicOverlap = 0.20

// isTopicChange reports whether msg starts a new topic relative to the
// anchored complaint message. Both conditions must hold: the message opens
// with an interrogative word, and fewer than 20% of its tokens appear in the
// anchored message.
func isTopicChange(msg, anchored string) bool {
	if anchored == "" {
		return false
	}
	toks := tokenRE.FindAllString(strings.ToLower(msg), -1)
	if len(toks) == 0 {
		return false
	}
	if _, ok := interrogatives[toks[0]]; !ok {
		return false
	}
	return tokenOverlap(toks, anchored) < topicOverlap
}

// tokenOverlap returns the fraction of msg tokens that also occur in anchored.
func tokenOverlap(msgTokens []string, anchored string) float64 {
	anchorSet := make(map[string]struct{})
	for _, t := range tokenRE.FindAllString(strings.ToLower(anchored), -1) {
		anchorSet[t] = struct{}{}
	}
	if len(anchorSet) == 0 {
		return 0
	}
	shared := 0
	for _, t := range msgTokens {
		if _, ok := anchorSet[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(msgTokens))
}
