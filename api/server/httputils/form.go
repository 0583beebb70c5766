package httputils

import (
	"net/http"
	"strconv"
	"strings"
)

// BoolValue interprets the named form/query value the way the Engine API
// always has: everything is truthy except the empty string, "0", "no",
// "false", and "none" (case-insensitive). It's deliberately not
// strconv.ParseBool: "yes", "one", "100" are all true on the wire.
func BoolValue(r *http.Request, k string) bool {
	s := strings.ToLower(strings.TrimSpace(r.FormValue(k)))
	switch s {
	case "", "0", "no", "false", "none":
		return false
	default:
		return true
	}
}

// BoolValueOrDefault returns def if k isn't present in the request at all.
// If k is present but empty, it's BoolValue's (false) result, not def.
func BoolValueOrDefault(r *http.Request, k string, def bool) bool {
	if _, ok := r.Form[k]; !ok {
		return def
	}
	return BoolValue(r, k)
}

// Int64ValueOrZero parses k as an int64, returning 0 for a missing or
// unparseable value rather than an error — used for values a caller can
// safely default to "none requested".
func Int64ValueOrZero(r *http.Request, k string) int64 {
	v, err := Int64ValueOrDefault(r, k, 0)
	if err != nil {
		return 0
	}
	return v
}

// Int64ValueOrDefault parses k as an int64, returning def if it's absent.
func Int64ValueOrDefault(r *http.Request, k string, def int64) (int64, error) {
	if s := r.FormValue(k); s != "" {
		return strconv.ParseInt(s, 10, 64)
	}
	return def, nil
}
