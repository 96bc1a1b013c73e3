package sharelink

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/and161185/notevault/internal/errs"
)

const sharePathPrefix = "/s/"

// FormatLink builds <base>/s/<token>#<base64url(linkKey)>.
func FormatLink(base, token string, linkKey []byte) string {
	return strings.TrimRight(base, "/") + sharePathPrefix + url.PathEscape(token) +
		"#" + base64.RawURLEncoding.EncodeToString(linkKey)
}

// ParseLink extracts the token id and link key from a share link.
func ParseLink(link string) (token string, linkKey []byte, err error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	i := strings.LastIndex(u.Path, sharePathPrefix)
	if i < 0 {
		return "", nil, fmt.Errorf("%w: not a share link", errs.ErrInvalidArgument)
	}
	token = u.Path[i+len(sharePathPrefix):]
	if token == "" || strings.Contains(token, "/") {
		return "", nil, fmt.Errorf("%w: missing token", errs.ErrInvalidArgument)
	}
	linkKey, err = base64.RawURLEncoding.DecodeString(u.Fragment)
	if err != nil || len(linkKey) != LinkKeyLen {
		return "", nil, fmt.Errorf("%w: bad link key", errs.ErrKeyFormat)
	}
	return token, linkKey, nil
}
