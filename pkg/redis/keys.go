package redis

import "strings"

const defaultNamespace = "cc"

// keyspace builds colon separated keys under a fixed namespace. Empty parts
// are skipped so optional segments never produce "::".
type keyspace string

func (k keyspace) key(parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey names the stored response for a client supplied key.
func (k keyspace) IdempotencyKey(scope, id string) string {
	return k.key("idempotency", scope, id)
}

// AccessSessionKey names the refresh session bound to an access token jti.
func (k keyspace) AccessSessionKey(accessID string) string {
	return k.key("session", "access", accessID)
}

// LockKey names a distributed lock.
func (k keyspace) LockKey(name string) string {
	return k.key("lock", name)
}

func (k keyspace) rateLimitKey(scope string, bucket string) string {
	return k.key("rate_limit", scope, bucket)
}
