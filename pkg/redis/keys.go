package redis

import "strings"

const keyNamespace = "my"

// key joins non-empty parts under the namespace: my:<part>:<part>...
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return key("idempotency", scope, id)
}

// OTPAttemptKey counts failed code entries for one mission phase.
func (c *Client) OTPAttemptKey(missionID, phase string) string {
	return key("otp_attempts", missionID, phase)
}

// GeocodeKey expects an already normalized address.
func (c *Client) GeocodeKey(address string) string {
	return key("geocode", address)
}

func (c *Client) RealtimeChannel(topic string) string {
	return key("realtime", topic)
}

func (c *Client) LockKey(name string) string {
	return key("lock", name)
}

func (c *Client) RevokedSessionKey(tokenID string) string {
	return key("session", "revoked", tokenID)
}

// RateLimitKey counts one fixed window for a policy dimension such as ip or user.
func (c *Client) RateLimitKey(policy, dimension, subject string) string {
	return key("ratelimit", policy, dimension, subject)
}
