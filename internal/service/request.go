package service

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"strconv"
	"strings"
	"time"
)

// RequestContext carries per-request correlation data. It lives for one
// request and is never shared.
type RequestContext struct {
	ID        string
	ClientKey string
	Start     time.Time
}

// NewRequestContext derives the correlation id and client identity from the
// network origin. The id is the first 12 hex characters of md5(nanos+origin).
func NewRequestContext(remoteAddr string, now time.Time) RequestContext {
	client := ClientKey(remoteAddr)
	sum := md5.Sum([]byte(strconv.FormatInt(now.UnixNano(), 10) + client))
	return RequestContext{
		ID:        hex.EncodeToString(sum[:])[:12],
		ClientKey: client,
		Start:     now,
	}
}

// ClientKey reduces a remote address to its host part.
func ClientKey(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// Elapsed is the processing time since the request was accepted.
func (rc RequestContext) Elapsed(now time.Time) time.Duration {
	if rc.Start.IsZero() {
		return 0
	}
	return now.Sub(rc.Start)
}
