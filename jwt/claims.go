package jwt

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/golang-jwt/jwt/v5"
)

// Claims provides generic claims on map
type Claims jwt.MapClaims

// Add new claims to the map
func (c Claims) Add(val ...any) error {
	for _, i := range val {
		if i == nil {
			continue
		}
		switch m := i.(type) {
		case map[string]any:
			c.merge(m)
		case Claims:
			c.merge(m)
		case jwt.MapClaims:
			c.merge(m)
		default:
			if reflect.Indirect(reflect.ValueOf(i)).Kind() == reflect.Struct {
				m, err := normalize(i)
				if err != nil {
					return errors.WithStack(err)
				}
				c.merge(m)
			} else {
				return errors.Errorf("unsupported claims interface")
			}
		}
	}
	return nil
}

// Clone returns a shallow copy of the claims
func (c Claims) Clone() Claims {
	cp := make(Claims, len(c))
	cp.merge(c)
	return cp
}

func (c Claims) merge(m map[string]any) {
	for k, v := range m {
		c[k] = v
	}
}

func normalize(i any) (map[string]any, error) {
	m := make(map[string]any)

	raw, err := json.Marshal(i)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()

	if err := d.Decode(&m); err != nil {
		return nil, errors.WithStack(err)
	}

	return m, nil
}

// Subject returns the sub claim
func (c Claims) Subject() string {
	return c.String("sub")
}

// Audience returns the aud claim, which may be encoded as a string or a list
func (c Claims) Audience() []string {
	aud, err := jwt.MapClaims(c).GetAudience()
	if err != nil {
		return nil
	}
	return aud
}

// VerifyAudience returns error if the aud claim does not contain
// any of the expected values
func (c Claims) VerifyAudience(expected []string) error {
	aud := c.Audience()
	for _, exp := range expected {
		for _, a := range aud {
			if a == exp {
				return nil
			}
		}
	}
	return errors.Errorf("token missing audience: %s", strings.Join(expected, ","))
}

// VerifyIssuer returns error if the iss claim does not match
func (c Claims) VerifyIssuer(expected string) error {
	iss, ok := c["iss"]
	if !ok {
		return errors.Errorf("iss claim not found")
	}
	if v := c.String("iss"); v != expected {
		return errors.Errorf("invalid issuer: %v, expected: %s", iss, expected)
	}
	return nil
}

// VerifyExpiresAt returns error if the exp claim is present
// and is at or before now minus leeway
func (c Claims) VerifyExpiresAt(now time.Time, leeway time.Duration) error {
	if _, ok := c["exp"]; !ok {
		return nil
	}
	exp := c.Time("exp")
	if exp == nil {
		return errors.Errorf("invalid exp claim: %v", c["exp"])
	}
	if exp.Unix() <= now.Add(-leeway).Unix() {
		return errors.Errorf("token expired at: %s", exp.UTC().Format(time.RFC3339))
	}
	return nil
}

// String will return the named claim as a string,
// if the underlying type is not a string,
// it will try and co-oerce it to a string.
func (c Claims) String(k string) string {
	v := c[k]
	if v == nil {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	case json.Number:
		return tv.String()
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	default:
		return xlog.EscapedString(v)
	}
}

// Time will return the named claim as Time
func (c Claims) Time(k string) *time.Time {
	v := c[k]
	if v == nil {
		return nil
	}
	switch tv := v.(type) {
	case time.Time:
		return &tv
	case *time.Time:
		return tv
	case int64:
		t := time.Unix(tv, 0)
		return &t
	case uint64:
		t := time.Unix(int64(tv), 0)
		return &t
	case int:
		t := time.Unix(int64(tv), 0)
		return &t
	case float64:
		t := time.Unix(int64(tv), 0)
		return &t
	case json.Number:
		unix, err := tv.Int64()
		if err != nil {
			return nil
		}
		t := time.Unix(unix, 0)
		return &t
	case string:
		if len(tv) > 20 {
			t, err := time.Parse("2006-01-02T15:04:05.000-0700", tv)
			if err != nil {
				return nil
			}
			return &t
		}
		unix, err := strconv.ParseInt(tv, 10, 64)
		if err != nil {
			return nil
		}
		t := time.Unix(unix, 0)
		return &t
	default:
		return nil
	}
}
