package builtin

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Prefix marks a dynamic variable name.
const Prefix = "$"

const (
	alphaNumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	lowerAlpha   = "abcdefghijklmnopqrstuvwxyz"
)

// Func computes a dynamic value from its call arguments.
type Func func(s *Scope, args []string) (string, error)

// Scope resolves {{$name}} and {{$name(args)}} tokens. Every lookup
// evaluates the function again, so two tokens never share a random value.
type Scope struct {
	funcs map[string]Func
	now   func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Scope.
type Option func(*Scope)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scope) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSeed makes random values reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Scope) {
		s.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

func NewScope(opts ...Option) *Scope {
	s := &Scope{
		funcs: make(map[string]Func),
		now:   time.Now,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	s.registerDefaults()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scope) registerDefaults() {
	s.funcs["guid"] = funcUUID
	s.funcs["uuid"] = funcUUID
	s.funcs["randomUUID"] = funcUUID
	s.funcs["timestamp"] = funcTimestamp
	s.funcs["timestampMs"] = funcTimestampMs
	s.funcs["isoTimestamp"] = funcISOTimestamp
	s.funcs["randomInt"] = funcRandomInt
	s.funcs["randomAlphaNumeric"] = funcRandomAlphaNumeric
	s.funcs["randomString"] = funcRandomString
	s.funcs["randomEmail"] = funcRandomEmail
	s.funcs["randomBoolean"] = funcRandomBoolean
	s.funcs["base64"] = funcBase64
	s.funcs["base64Decode"] = funcBase64Decode
	s.funcs["md5"] = funcMD5
	s.funcs["sha256"] = funcSHA256
	s.funcs["urlEncode"] = funcURLEncode
	s.funcs["urlDecode"] = funcURLDecode
	s.funcs["date"] = funcDate
}

// Register adds or replaces a function. Call it before the scope is shared.
func (s *Scope) Register(name string, fn Func) {
	s.funcs[name] = fn
}

// Names returns the registered function names.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		names = append(names, name)
	}
	return names
}

var callPattern = regexp.MustCompile(`^(\w+)(?:\((.*)\))?$`)

// Lookup implements env.Scope. Names without the $ prefix, unknown
// functions and calls with invalid arguments are not found, leaving the
// token for the next scope or verbatim.
func (s *Scope) Lookup(key string) (string, bool) {
	expr, ok := strings.CutPrefix(key, Prefix)
	if !ok {
		return "", false
	}
	matches := callPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if matches == nil {
		return "", false
	}
	fn, ok := s.funcs[matches[1]]
	if !ok {
		return "", false
	}
	var args []string
	if matches[2] != "" {
		args = parseArgs(matches[2])
	}
	v, err := fn(s, args)
	if err != nil {
		return "", false
	}
	return v, true
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inQuote && (ch == '"' || ch == '\'') {
			inQuote = true
			quoteChar = ch
		} else if inQuote && ch == quoteChar {
			inQuote = false
			quoteChar = 0
		} else if !inQuote && ch == ',' {
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		} else {
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

func (s *Scope) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *Scope) randomString(length int, charset string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[s.rng.IntN(len(charset))]
	}
	return string(result)
}

func intArg(args []string, i, def int) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("argument %d: %q is not an integer", i+1, args[i])
	}
	return v, nil
}

func firstArg(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("missing argument")
	}
	return args[0], nil
}

func funcUUID(_ *Scope, _ []string) (string, error) {
	return uuid.NewString(), nil
}

func funcTimestamp(s *Scope, _ []string) (string, error) {
	return strconv.FormatInt(s.now().Unix(), 10), nil
}

func funcTimestampMs(s *Scope, _ []string) (string, error) {
	return strconv.FormatInt(s.now().UnixMilli(), 10), nil
}

func funcISOTimestamp(s *Scope, _ []string) (string, error) {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z"), nil
}

// funcRandomInt returns an integer in [min, max], 0..1000 by default.
func funcRandomInt(s *Scope, args []string) (string, error) {
	lo, err := intArg(args, 0, 0)
	if err != nil {
		return "", err
	}
	hi, err := intArg(args, 1, 1000)
	if err != nil {
		return "", err
	}
	if len(args) == 1 {
		lo, hi = 0, lo
	}
	if hi < lo {
		return "", fmt.Errorf("max %d is less than min %d", hi, lo)
	}
	return strconv.Itoa(lo + s.intN(hi-lo+1)), nil
}

func funcRandomAlphaNumeric(s *Scope, args []string) (string, error) {
	n, err := intArg(args, 0, 1)
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid length")
	}
	return s.randomString(n, alphaNumeric), nil
}

func funcRandomString(s *Scope, args []string) (string, error) {
	n, err := intArg(args, 0, 16)
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid length")
	}
	return s.randomString(n, alphaNumeric), nil
}

func funcRandomEmail(s *Scope, _ []string) (string, error) {
	return fmt.Sprintf("%s@%s.com", s.randomString(8, lowerAlpha), s.randomString(6, lowerAlpha)), nil
}

func funcRandomBoolean(s *Scope, _ []string) (string, error) {
	return strconv.FormatBool(s.intN(2) == 1), nil
}

func funcBase64(_ *Scope, args []string) (string, error) {
	v, err := firstArg(args)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString([]byte(v)), nil
}

func funcBase64Decode(_ *Scope, args []string) (string, error) {
	v, err := firstArg(args)
	if err != nil {
		return "", err
	}
	decoded, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func funcMD5(_ *Scope, args []string) (string, error) {
	v, err := firstArg(args)
	if err != nil {
		return "", err
	}
	hash := md5.Sum([]byte(v))
	return hex.EncodeToString(hash[:]), nil
}

func funcSHA256(_ *Scope, args []string) (string, error) {
	v, err := firstArg(args)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256([]byte(v))
	return hex.EncodeToString(hash[:]), nil
}

func funcURLEncode(_ *Scope, args []string) (string, error) {
	v, err := firstArg(args)
	if err != nil {
		return "", err
	}
	return url.QueryEscape(v), nil
}

func funcURLDecode(_ *Scope, args []string) (string, error) {
	v, err := firstArg(args)
	if err != nil {
		return "", err
	}
	return url.QueryUnescape(v)
}

// funcDate formats the current UTC time with a Go layout, 2006-01-02 by default.
func funcDate(s *Scope, args []string) (string, error) {
	layout := "2006-01-02"
	if len(args) >= 1 && args[0] != "" {
		layout = args[0]
	}
	return s.now().UTC().Format(layout), nil
}
