package handler

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var errBadUserID = errors.New("invalid userId")

// userIDOrDefault reads a user id from a query string or JSON value. Missing,
// empty, zero and null all mean user 1.
func userIDOrDefault(v any) (int, error) {
	id, ok, err := optionalID(v)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return id, nil
}

// optionalID parses v as an integer id in the INT column range. ok is false
// for nil, "", 0 and false.
func optionalID(v any) (id int, ok bool, err error) {
	switch val := v.(type) {
	case nil:
		return 0, false, nil
	case bool:
		if !val {
			return 0, false, nil
		}
		return 0, false, errBadUserID
	case float64:
		if val == 0 {
			return 0, false, nil
		}
		if math.IsNaN(val) || val > math.MaxInt32 || val < math.MinInt32 {
			return 0, false, errBadUserID
		}
		return int(val), true, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return 0, false, errBadUserID
		}
		if n == 0 {
			return 0, false, nil
		}
		return int(n), true, nil
	default:
		return 0, false, errBadUserID
	}
}
