package excmd

import (
	"fmt"
	"strconv"
	"strings"
)

// Base is where an address starts counting from.
type Base byte

const (
	BaseDot    Base = '.'
	BaseLast   Base = '$'
	BaseMark   Base = '\''
	BaseNumber Base = 'n'
)

// Address is one unresolved line address: a base plus an offset.
type Address struct {
	Base   Base
	Line   int
	Mark   byte
	Offset int
}

// Command is one parsed command line.
type Command struct {
	Addrs []Address
	Name  string
	Bang  bool
	Arg   string
}

// Parse splits a command line into addresses, a command name and its
// argument. The name is returned as typed; lookup expands abbreviations.
func Parse(line string) (*Command, error) {
	s := strings.TrimLeft(line, " \t:")
	c := &Command{}

	if strings.HasPrefix(s, "%") {
		c.Addrs = []Address{{Base: BaseNumber, Line: 1}, {Base: BaseLast}}
		s = s[1:]
	} else {
		for {
			a, rest, ok, err := parseAddress(s)
			if err != nil {
				return nil, err
			}
			if !ok {
				if len(c.Addrs) > 0 {
					// "1," means "1,."
					c.Addrs = append(c.Addrs, Address{Base: BaseDot})
				}
				break
			}
			c.Addrs = append(c.Addrs, a)
			s = strings.TrimLeft(rest, " \t")
			if len(c.Addrs) == 2 || s == "" || (s[0] != ',' && s[0] != ';') {
				break
			}
			s = s[1:]
		}
	}

	s = strings.TrimLeft(s, " \t")
	switch {
	case s == "":
		return c, nil
	case s[0] == '=':
		c.Name, s = "=", s[1:]
	case isLetter(s[0]):
		n := 1
		for n < len(s) && isLetter(s[n]) {
			n++
		}
		c.Name, s = s[:n], s[n:]
		// "ka" is k with argument a.
		if len(c.Name) == 2 && c.Name[0] == 'k' && lookup(c.Name) == nil {
			c.Name, s = "k", c.Name[1:]+s
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	if strings.HasPrefix(s, "!") {
		c.Bang, s = true, s[1:]
	}
	c.Arg = strings.TrimLeft(s, " \t")
	return c, nil
}

// parseAddress reads one address from the start of s.
func parseAddress(s string) (Address, string, bool, error) {
	var a Address
	switch {
	case s == "":
		return a, s, false, nil
	case isDigit(s[0]):
		n, rest := leadingNumber(s)
		a.Base, a.Line, s = BaseNumber, n, rest
	case s[0] == '.':
		a.Base, s = BaseDot, s[1:]
	case s[0] == '$':
		a.Base, s = BaseLast, s[1:]
	case s[0] == '\'' || s[0] == '`':
		if len(s) < 2 {
			return a, s, false, fmt.Errorf("%w: missing mark name", ErrBadAddress)
		}
		a.Base, a.Mark, s = BaseMark, s[1], s[2:]
	case s[0] == '+' || s[0] == '-':
		a.Base = BaseDot
	default:
		return a, s, false, nil
	}

	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" || (s[0] != '+' && s[0] != '-') {
			return a, s, true, nil
		}
		sign := 1
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
		n := 1
		if s != "" && isDigit(s[0]) {
			n, s = leadingNumber(s)
		}
		a.Offset += sign * n
	}
}

func leadingNumber(s string) (int, string) {
	n := 0
	for n < len(s) && isDigit(s[n]) {
		n++
	}
	v, err := strconv.Atoi(s[:n])
	if err != nil {
		v = int(^uint(0) >> 1)
	}
	return v, s[n:]
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

// splitDelimited splits "/pat/rest" at unescaped delimiters. The first byte
// of s is the delimiter. A trailing missing delimiter is allowed.
func splitDelimited(s string, parts int) ([]string, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: missing pattern", ErrUsage)
	}
	delim := s[0]
	if isLetter(delim) || isDigit(delim) || delim == '\\' || delim == ' ' || delim == '"' {
		return nil, fmt.Errorf("%w: bad delimiter %q", ErrUsage, delim)
	}
	s = s[1:]
	var out []string
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if len(out) == parts-1 {
			out = append(out, s[i:])
			return out, nil
		}
		switch {
		case ch == '\\' && i+1 < len(s) && s[i+1] == delim:
			sb.WriteByte(delim)
			i++
		case ch == delim:
			out = append(out, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(ch)
		}
	}
	if len(out) < parts {
		out = append(out, sb.String())
	}
	for len(out) < parts {
		out = append(out, "")
	}
	return out, nil
}
