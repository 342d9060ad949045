package convo

import (
	"regexp"
	"strings"
)

// Entity extraction heuristics. Input is loosely structured free text and is
// expected to contain misspellings ("adderss" appears in real traffic), so the
// address markers are typo-tolerant on purpose. Extraction only fills fields
// that are currently empty and never validates what it captured.

var (
	phoneRE = regexp.MustCompile(`\d{10,}`)

	// Name markers, most specific first. The capture stops at commas and
	// digits so trailing "mobile 98765..." segments do not leak into the name.
	nameMarkerREs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)my name is\s+([^,\d]+)`),
		regexp.MustCompile(`(?i)\bname is\s+([^,\d]+)`),
		regexp.MustCompile(`(?i)\bname[:\s]\s*([^,\d]+)`),
	}

	// Address markers, typo-tolerant. The address is the remainder of the
	// message after the marker.
	addressMarkerRE = regexp.MustCompile(`(?i)\b(?:address|adderss)(?:\s+is|:)?\s+(.+)$`)

	wordNameRE = regexp.MustCompile(`(?i)\bname\b`)
)

// Extract scans text for name/phone/address substrings and returns info with
// any still-empty fields filled. Previously extracted values always win; a
// second phone number in a later message never replaces the first.
func Extract(text string, info UserInfo) UserInfo {
	lower := strings.ToLower(text)

	// 1. Phone: first run of 10+ consecutive digits.
	if info.Mobile == "" {
		if m := phoneRE.FindString(text); m != "" {
			info.Mobile = m
		}
	}

	// 2. Name via markers, with a text-before-"number"/"mobile" fallback.
	if info.Name == "" {
		for _, re := range nameMarkerREs {
			if m := re.FindStringSubmatch(text); m != nil {
				if v := trimCaptured(m[1]); v != "" {
					info.Name = v
					break
				}
			}
		}
		if info.Name == "" && wordNameRE.MatchString(text) {
			cut := len(text)
			for _, marker := range []string{"number", "mobile"} {
				if i := strings.Index(lower, marker); i >= 0 && i < cut {
					cut = i
				}
			}
			if cut < len(text) {
				if v := trimCaptured(text[:cut]); v != "" {
					info.Name = v
				}
			}
		}
	}

	// 3. Address via markers, with a text-after-phone-run fallback.
	if info.Address == "" {
		if m := addressMarkerRE.FindStringSubmatch(text); m != nil {
			if v := trimCaptured(m[1]); v != "" {
				info.Address = v
			}
		}
		if info.Address == "" && (strings.Contains(lower, "address") || strings.Contains(lower, "adderss")) {
			if loc := phoneRE.FindStringIndex(text); loc != nil && loc[1] < len(text) {
				if v := trimCaptured(text[loc[1]:]); v != "" {
					info.Address = v
				}
			}
		}
	}

	// 4. Comma-separated fallback: sniff each segment, then hand any single
	// leftover segment to the single remaining empty field.
	if strings.Contains(text, ",") && !info.Complete() {
		info = extractFromSegments(strings.Split(text, ","), info)
	}

	return info
}

func extractFromSegments(segments []string, info UserInfo) UserInfo {
	var leftovers []string
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		low := strings.ToLower(seg)
		switch {
		case phoneRE.MatchString(seg):
			if info.Mobile == "" {
				info.Mobile = phoneRE.FindString(seg)
			}
		case strings.Contains(low, "address") || strings.Contains(low, "adderss"):
			if info.Address == "" {
				if m := addressMarkerRE.FindStringSubmatch(seg); m != nil {
					info.Address = trimCaptured(m[1])
				} else {
					info.Address = trimCaptured(seg)
				}
			}
		case strings.HasPrefix(low, "my name"):
			if info.Name == "" {
				v := seg
				for _, re := range nameMarkerREs {
					if m := re.FindStringSubmatch(seg); m != nil {
						v = m[1]
						break
					}
				}
				info.Name = trimCaptured(v)
			}
		default:
			leftovers = append(leftovers, seg)
		}
	}

	// Exactly one field still empty and at least one unclaimed segment: the
	// first leftover is assumed to be that field.
	if len(leftovers) > 0 {
		empty := 0
		if info.Name == "" {
			empty++
		}
		if info.Mobile == "" {
			empty++
		}
		if info.Address == "" {
			empty++
		}
		if empty == 1 {
			v := trimCaptured(leftovers[0])
			switch {
			case info.Name == "":
				info.Name = v
			case info.Mobile == "":
				info.Mobile = v
			case info.Address == "":
				info.Address = v
			}
		}
	}

	return info
}

// trimCaptured trims whitespace plus trailing punctuation from a captured span.
func trimCaptured(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,;:!?-")
	return strings.TrimSpace(s)
}
