package flowctx

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Load returns the payload under key decoded as T.
//
// Live payloads of type T are returned as copies. Anything else (restored
// json.RawMessage, maps written by other consumers) is decoded through JSON.
// A payload that cannot be decoded is reported as absent; use Lookup to
// tell the two apart.
func Load[T any](s *Store, key string) (T, bool) {
	v, ok, err := Lookup[T](s, key)
	if err != nil {
		s.log.Debug("flowctx: decode payload", zap.String("key", key), zap.Error(err))
		return v, false
	}
	return v, ok
}

// Lookup is Load with decode failures surfaced. ok is false with a nil
// error when key is absent or expired.
func Lookup[T any](s *Store, key string) (T, bool, error) {
	var zero T
	data, ok := s.Data(key)
	if !ok || data == nil {
		return zero, false, nil
	}

	switch v := data.(type) {
	case T:
		return v, true, nil
	case *T:
		if v == nil {
			return zero, false, nil
		}
		return *v, true, nil
	}

	raw, isRaw := data.(json.RawMessage)
	if !isRaw {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return zero, false, eris.Wrapf(err, "flowctx: encode %q", key)
		}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false, eris.Wrapf(err, "flowctx: decode %q", key)
	}
	return out, true, nil
}

// Update reads the payload under key, applies fn and writes the result back.
// fn receives nil when the key is absent or expired. The previous breadcrumb
// trail and expiry are kept unless opts override them.
func Update[T any](s *Store, key string, fn func(prev *T) T, opts ...Option) Entry {
	var prev *T
	if cur, ok := Load[T](s, key); ok {
		prev = &cur
	}
	return s.Save(key, fn(prev), opts...)
}
