package redis

import "strings"

const defaultNamespace = "payouts"

// Keyspace builds colon separated keys under one namespace, e.g. payouts:lock:cron-worker:prod.
type Keyspace struct {
	namespace string
}

func NewKeyspace(namespace string) Keyspace {
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = defaultNamespace
	}
	return Keyspace{namespace: namespace}
}

func (k Keyspace) Idempotency(scope, id string) string {
	return k.join("idempotency", scope, id)
}

func (k Keyspace) RateLimit(scope string) string {
	return k.join("rate_limit", scope)
}

func (k Keyspace) Lock(parts ...string) string {
	return k.join(append([]string{"lock"}, parts...)...)
}

func (k Keyspace) join(parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	out := []string{ns}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}

func (c *Client) IdempotencyKey(scope, id string) string { return c.keys.Idempotency(scope, id) }

func (c *Client) RateLimitKey(scope string) string { return c.keys.RateLimit(scope) }

func (c *Client) LockKey(parts ...string) string { return c.keys.Lock(parts...) }
