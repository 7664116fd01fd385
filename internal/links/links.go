// Package links parses user-supplied Telegram message links.
package links

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// RefKind tags how a channel is addressed.
type RefKind int

// RefKind values.
const (
	RefInviteHash RefKind = iota + 1
	RefInternalID
	RefUsername
)

func (k RefKind) String() string {
	switch k {
	case RefInviteHash:
		return "invite_hash"
	case RefInternalID:
		return "internal_id"
	case RefUsername:
		return "username"
	default:
		return "unknown"
	}
}

// ChannelRef identifies a channel. Exactly one of Hash, ID or Username is
// set, according to Kind.
type ChannelRef struct {
	Kind     RefKind
	Hash     string
	ID       int64
	Username string
}

// String returns a loggable form of the reference.
func (r ChannelRef) String() string {
	switch r.Kind {
	case RefInviteHash:
		return "+" + r.Hash
	case RefInternalID:
		return "c/" + strconv.FormatInt(r.ID, 10)
	case RefUsername:
		return "@" + r.Username
	default:
		return ""
	}
}

// Link is a resolved message link. MessageID is zero when the link points
// at the channel itself.
type Link struct {
	Ref       ChannelRef
	MessageID int
}

// HasMessage reports whether the link names a specific message.
func (l Link) HasMessage() bool { return l.MessageID > 0 }

var (
	hosts = map[string]bool{
		"t.me":            true,
		"www.t.me":        true,
		"telegram.me":     true,
		"www.telegram.me": true,
		"telegram.dog":    true,
	}

	// path segments with a fixed meaning on t.me
	reserved = map[string]bool{
		"joinchat":    true,
		"c":           true,
		"s":           true,
		"addstickers": true,
		"addemoji":    true,
		"addlist":     true,
		"share":       true,
		"proxy":       true,
		"socks":       true,
		"iv":          true,
		"login":       true,
		"setlanguage": true,
		"addtheme":    true,
		"boost":       true,
		"invoice":     true,
	}

	usernameRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
	inviteHashRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Resolve extracts the first Telegram link found in raw. It returns false
// for any text that does not contain a recognised link shape.
func Resolve(raw string) (Link, bool) {
	for _, field := range strings.Fields(raw) {
		if link, ok := resolveOne(field); ok {
			return link, true
		}
	}
	return Link{}, false
}

func resolveOne(token string) (Link, bool) {
	token = strings.Trim(token, "<>()[]\"'.,;")
	if token == "" {
		return Link{}, false
	}

	lower := strings.ToLower(token)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		token = "https://" + token
	}

	u, err := url.Parse(token)
	if err != nil || !hosts[strings.ToLower(u.Hostname())] {
		return Link{}, false
	}

	segments := splitPath(u.Path)
	if len(segments) == 0 {
		return Link{}, false
	}

	return fromSegments(segments)
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func fromSegments(seg []string) (Link, bool) {
	head := seg[0]

	switch {
	case strings.HasPrefix(head, "+"):
		return inviteLink(strings.TrimPrefix(head, "+"), seg[1:])

	case strings.EqualFold(head, "joinchat"):
		if len(seg) < 2 {
			return Link{}, false
		}
		return inviteLink(seg[1], seg[2:])

	case head == "c":
		if len(seg) < 2 {
			return Link{}, false
		}
		id, err := strconv.ParseInt(seg[1], 10, 64)
		if err != nil || id <= 0 {
			return Link{}, false
		}
		// c/<id>/<thread>/<msg> links carry the message last
		msg, ok := trailingMessage(seg[2:], 2)
		if !ok {
			return Link{}, false
		}
		return Link{Ref: ChannelRef{Kind: RefInternalID, ID: id}, MessageID: msg}, true

	case head == "s":
		// web preview form: s/<username>[/<msg>]
		return usernameLink(seg[1:])

	default:
		return usernameLink(seg)
	}
}

func inviteLink(hash string, rest []string) (Link, bool) {
	if hash == "" || !inviteHashRe.MatchString(hash) {
		return Link{}, false
	}
	msg, ok := trailingMessage(rest, 1)
	if !ok {
		return Link{}, false
	}
	return Link{Ref: ChannelRef{Kind: RefInviteHash, Hash: hash}, MessageID: msg}, true
}

func usernameLink(seg []string) (Link, bool) {
	if len(seg) == 0 {
		return Link{}, false
	}
	name := seg[0]
	if reserved[strings.ToLower(name)] || !usernameRe.MatchString(name) {
		return Link{}, false
	}
	msg, ok := trailingMessage(seg[1:], 2)
	if !ok {
		return Link{}, false
	}
	return Link{Ref: ChannelRef{Kind: RefUsername, Username: name}, MessageID: msg}, true
}

// trailingMessage parses the optional message id in the remaining path.
// Up to max numeric segments are accepted (topic links put the thread id
// first); the last one is the message.
func trailingMessage(rest []string, max int) (int, bool) {
	if len(rest) == 0 {
		return 0, true
	}
	if len(rest) > max {
		return 0, false
	}
	var msg int
	for _, s := range rest {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, false
		}
		msg = n
	}
	return msg, true
}
