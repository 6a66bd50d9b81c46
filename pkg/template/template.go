// Package template expands the {{...}} placeholders a config author writes
// into a TestSpec's URL, headers, and body — at config-load time, once per
// generated test case, never on the hot request path. This is a config-time
// concern only: the core executor and dispatchers never see a placeholder,
// only the already-expanded spec.TestSpec values pkg/config builds with
// this package plus pkg/feed.
package template

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lucasjones/reggen"
)

const (
	lettersLower = "abcdefghijklmnopqrstuvwxyz"
	lettersUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	alphanum     = lettersLower + lettersUpper + digits
)

// Processor replaces {{var}} and {{func(args)}} placeholders in a string
// using a per-expansion session map (typically fed by pkg/feed) layered
// over a fixed set of built-in generators.
type Processor struct {
	funcMap map[string]func([]string) string
}

// New builds a Processor with its built-in function table initialized.
func New() *Processor {
	p := &Processor{}
	p.initFuncMap()
	return p
}

func (p *Processor) initFuncMap() {
	p.funcMap = map[string]func([]string) string{
		"hmac_sha256": func(args []string) string {
			if len(args) != 2 {
				return "ERROR:hmac_sha256_needs_2_args"
			}
			h := hmac.New(sha256.New, []byte(args[0]))
			h.Write([]byte(args[1]))
			return hex.EncodeToString(h.Sum(nil))
		},
		"base64_encode": func(args []string) string {
			if len(args) != 1 {
				return "ERROR:base64_encode_needs_1_arg"
			}
			return base64.StdEncoding.EncodeToString([]byte(args[0]))
		},
		"md5": func(args []string) string {
			if len(args) != 1 {
				return "ERROR:md5_needs_1_arg"
			}
			sum := md5.Sum([]byte(args[0]))
			return hex.EncodeToString(sum[:])
		},
		"sha256": func(args []string) string {
			if len(args) != 1 {
				return "ERROR:sha256_needs_1_arg"
			}
			sum := sha256.Sum256([]byte(args[0]))
			return hex.EncodeToString(sum[:])
		},
		"time_future": func(args []string) string { return shiftedTime(args, 1) },
		"time_past":   func(args []string) string { return shiftedTime(args, -1) },
		"random_choice": func(args []string) string {
			if len(args) == 0 {
				return ""
			}
			return args[rand.IntN(len(args))]
		},
		"random_int_range": func(args []string) string {
			if len(args) != 2 {
				return "ERROR:random_int_range_needs_min_max"
			}
			lo, _ := strconv.Atoi(strings.TrimSpace(args[0]))
			hi, _ := strconv.Atoi(strings.TrimSpace(args[1]))
			if hi <= lo {
				return strconv.Itoa(lo)
			}
			return strconv.Itoa(rand.IntN(hi-lo) + lo)
		},
		"random_float_range": func(args []string) string {
			if len(args) < 2 {
				return "ERROR:random_float_range_needs_min_max"
			}
			lo, _ := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
			hi, _ := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			decimals := 2
			if len(args) >= 3 {
				if d, err := strconv.Atoi(strings.TrimSpace(args[2])); err == nil {
					decimals = d
				}
			}
			val := lo + rand.Float64()*(hi-lo)
			return fmt.Sprintf("%.*f", decimals, val)
		},
		"random_string": func(args []string) string {
			length := 10
			if len(args) >= 1 {
				if l, err := strconv.Atoi(args[0]); err == nil {
					length = l
				}
			}
			chars := alphanum
			if len(args) >= 2 {
				chars = args[1]
			}
			return randomChars(chars, length)
		},
		"regex_gen": func(args []string) string {
			if len(args) != 1 {
				return "ERROR:regex_gen_needs_pattern"
			}
			s, err := reggen.Generate(args[0], 10)
			if err != nil {
				return "ERROR:regex_gen_failed"
			}
			return s
		},
	}
}

func shiftedTime(args []string, sign int) string {
	if len(args) < 1 {
		return "ERROR:duration_required"
	}
	dur, err := time.ParseDuration(args[0])
	if err != nil {
		return "ERROR:invalid_duration"
	}
	layout := time.RFC3339
	if len(args) >= 2 {
		layout = args[1]
	}
	return time.Now().Add(time.Duration(sign) * dur).Format(layout)
}

func randomChars(charset string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}
	return string(b)
}

// Process expands every {{...}} reference in input, preferring a key in
// session over a built-in generator.
func (p *Processor) Process(input string, session map[string]string) string {
	if strings.IndexByte(input, '{') == -1 || !strings.Contains(input, "{{") {
		return input
	}

	var sb strings.Builder
	sb.Grow(len(input))
	lastIdx := 0

	for i := 0; i < len(input); {
		start := strings.Index(input[i:], "{{")
		if start == -1 {
			sb.WriteString(input[i:])
			break
		}
		start += i

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			sb.WriteString(input[i:])
			break
		}
		end += start

		sb.WriteString(input[lastIdx:start])
		content := strings.TrimSpace(input[start+2 : end])

		if idx := strings.IndexByte(content, '('); idx != -1 && strings.HasSuffix(content, ")") {
			funcName := strings.TrimSpace(content[:idx])
			args := parseArgs(content[idx+1 : len(content)-1])
			if f, ok := p.funcMap[funcName]; ok {
				sb.WriteString(f(args))
			} else {
				sb.WriteString(input[start : end+2])
			}
		} else {
			sb.WriteString(p.getValue(content, session))
		}

		i = end + 2
		lastIdx = i
	}

	return sb.String()
}

func parseArgs(s string) []string {
	var args []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch r {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				args = append(args, strings.TrimSpace(cur.String()))
				cur.Reset()
				continue
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, strings.TrimSpace(cur.String()))
	}
	for i, a := range args {
		if strings.HasPrefix(a, `"`) && strings.HasSuffix(a, `"`) && len(a) >= 2 {
			args[i] = a[1 : len(a)-1]
		}
	}
	return args
}

func (p *Processor) getValue(name string, session map[string]string) string {
	if val, ok := session[name]; ok {
		return val
	}

	switch name {
	case "uuid":
		return uuid.New().String()
	case "random_int":
		return strconv.Itoa(rand.IntN(100000))
	case "timestamp":
		return strconv.FormatInt(time.Now().Unix(), 10)
	case "timestamp_ms":
		return strconv.FormatInt(time.Now().UnixMilli(), 10)
	case "random_email":
		return fmt.Sprintf("user%d@example.com", rand.IntN(1000000))
	case "random_alphanum":
		return randomChars(alphanum, 10)
	case "random_bool":
		if rand.IntN(2) == 0 {
			return "false"
		}
		return "true"
	case "random_float":
		return fmt.Sprintf("%.6f", rand.Float64())
	case "iso8601":
		return time.Now().UTC().Format(time.RFC3339)
	case "random_ipv4":
		return fmt.Sprintf("%d.%d.%d.%d", rand.IntN(256), rand.IntN(256), rand.IntN(256), rand.IntN(256))
	}

	switch {
	case strings.HasPrefix(name, "random_digits_"):
		return randomChars(digits, parsePositiveInt(name[len("random_digits_"):], 10, 20))
	case strings.HasPrefix(name, "random_alphanum_"):
		return randomChars(alphanum, parsePositiveInt(name[len("random_alphanum_"):], 10, 64))
	}

	// Unknown reference: leave the placeholder intact so a config author
	// can spot the typo in the rendered request rather than silently
	// sending an empty string.
	return "{{" + name + "}}"
}

func parsePositiveInt(s string, defaultVal, maxVal int) int {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return defaultVal
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 {
		return defaultVal
	}
	if n > maxVal {
		return maxVal
	}
	return n
}
