package runtime

import (
	"github.com/eventops/manifest/internal/ir"
)

// metaKeys are the wrapper fields transport layers add around the semantic
// arguments of a call. They never affect the idempotency fingerprint: two
// calls that differ only in wrapper shape are the same call.
var metaKeys = map[string]bool{
	"entityName":     true,
	"commandName":    true,
	"instanceId":     true,
	"idempotencyKey": true,
}

// IdempotencyKey derives a deterministic key for one command call. The
// payload is reduced to its semantic arguments (wrapper metadata stripped,
// an `args` envelope unwrapped), canonically serialized with deep-sorted
// keys, and hashed together with the call coordinates:
//
//	SHA-256(correlationID | callID | commandKey | fingerprint)
//
// The result is 64 hex characters. Pure function: equal inputs always
// produce the same key, and every component is load-bearing.
func IdempotencyKey(correlationID, callID, commandKey string, payload ir.Value) (string, error) {
	fingerprint, err := ir.MarshalCanonical(semanticArgs(payload))
	if err != nil {
		return "", err
	}
	material := correlationID + "|" + callID + "|" + commandKey + "|" + string(fingerprint)
	return ir.HashWithDomain(ir.DomainIdempotency, []byte(material)), nil
}

// semanticArgs strips wrapper metadata and unwraps `args` envelopes until
// only the caller's actual arguments remain.
func semanticArgs(payload ir.Value) ir.Value {
	obj, ok := payload.(ir.Object)
	if !ok {
		if payload == nil {
			return ir.Null{}
		}
		return payload
	}

	out := make(ir.Object, len(obj))
	for k, v := range obj {
		if metaKeys[k] {
			continue
		}
		out[k] = v
	}
	if inner, ok := out["args"].(ir.Object); ok && len(out) == 1 {
		return semanticArgs(inner)
	}
	return out
}
